package savefile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// LiveGames lists the game directories under the saved-games root, sorted
// by name. The reserved pretender directory and plain files are skipped.
func LiveGames(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("savefile: listing %s: %w", root, err)
	}

	games := make([]string, 0, len(entries))

	for _, e := range entries {
		if !e.IsDir() || IsReservedDir(e.Name()) {
			continue
		}

		games = append(games, NormalizeGame(e.Name()))
	}

	sort.Strings(games)

	return games, nil
}

// FoundTurn is a turn file found on disk together with its modification time.
type FoundTurn struct {
	Turn    TurnFile
	Path    string
	ModTime time.Time
}

// FindTurnFiles returns the turn files in a game directory, newest first.
// Ties are broken by name so the result is deterministic.
func FindTurnFiles(gameDir string) ([]FoundTurn, error) {
	entries, err := os.ReadDir(gameDir)
	if err != nil {
		return nil, fmt.Errorf("savefile: listing %s: %w", gameDir, err)
	}

	var found []FoundTurn

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		turn, ok := ParseTurnFileName(e.Name())
		if !ok {
			continue
		}

		info, err := e.Info()
		if err != nil {
			// Removed between readdir and stat.
			continue
		}

		found = append(found, FoundTurn{
			Turn:    turn,
			Path:    filepath.Join(gameDir, e.Name()),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].ModTime.Equal(found[j].ModTime) {
			return found[i].ModTime.After(found[j].ModTime)
		}

		return found[i].Turn.Name() < found[j].Turn.Name()
	})

	return found, nil
}
