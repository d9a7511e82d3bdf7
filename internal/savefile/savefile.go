// Package savefile recognizes the files a Dominions game writes into its
// saved-games directory. Everything here is pure path and name parsing
// except LiveGames and FindTurnFiles, which list directories.
package savefile

import (
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// File extensions written by the game.
const (
	TurnExt  = ".trn"
	OrderExt = ".2h"
)

// ReservedDir is the pretender library directory. It lives alongside the
// game directories but never holds a game.
const ReservedDir = "newlords"

// Ages a turn file may be produced in.
const (
	AgeEarly = "early"
	AgeMid   = "mid"
	AgeLate  = "late"
)

var turnFileRe = regexp.MustCompile(`^(early|mid|late)_([a-z]+)\.trn$`)

// TurnFile identifies the turn file of one player in one game by its
// age-phase and faction code.
type TurnFile struct {
	Age     string
	Faction string
}

// Name returns the turn file name, e.g. "early_arco.trn".
func (t TurnFile) Name() string {
	return t.Age + "_" + t.Faction + TurnExt
}

// OrderName returns the paired order file name, e.g. "early_arco.2h".
func (t TurnFile) OrderName() string {
	return t.Age + "_" + t.Faction + OrderExt
}

// IsZero reports whether t is the zero TurnFile.
func (t TurnFile) IsZero() bool {
	return t.Age == "" && t.Faction == ""
}

func (t TurnFile) String() string {
	return t.Name()
}

// ParseTurnFileName parses a bare file name. Only the exact
// <age>_<faction>.trn shape is accepted.
func ParseTurnFileName(name string) (TurnFile, bool) {
	m := turnFileRe.FindStringSubmatch(name)
	if m == nil {
		return TurnFile{}, false
	}

	return TurnFile{Age: m[1], Faction: m[2]}, true
}

// Identity is a classified turn-file path.
type Identity struct {
	Game string
	Turn TurnFile
}

// Classify decides whether path names a turn file of a game directly under
// root. It performs no I/O.
func Classify(root, path string) (Identity, bool) {
	rel, ok := relativeParts(root, path)
	if !ok || len(rel) != 2 {
		return Identity{}, false
	}

	game := NormalizeGame(rel[0])
	if IsReservedDir(game) {
		return Identity{}, false
	}

	turn, ok := ParseTurnFileName(rel[1])
	if !ok {
		return Identity{}, false
	}

	return Identity{Game: game, Turn: turn}, true
}

// GameDir returns the game name when path is a direct child of root that
// could be a game directory. It does not check that the path is a directory.
func GameDir(root, path string) (string, bool) {
	rel, ok := relativeParts(root, path)
	if !ok || len(rel) != 1 {
		return "", false
	}

	game := NormalizeGame(rel[0])
	if IsReservedDir(game) {
		return "", false
	}

	return game, true
}

// IsReservedDir reports whether name is the pretender library directory.
func IsReservedDir(name string) bool {
	return strings.EqualFold(name, ReservedDir)
}

// IsTurnFile reports whether name carries the turn file extension.
func IsTurnFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), TurnExt)
}

// IsOrderFile reports whether name carries the order file extension.
func IsOrderFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), OrderExt)
}

// NormalizeGame returns the NFC form of a game directory name. macOS
// reports decomposed names from some APIs and composed ones from others.
func NormalizeGame(name string) string {
	return norm.NFC.String(name)
}

func relativeParts(root, path string) ([]string, bool) {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, false
	}

	return strings.Split(filepath.ToSlash(rel), "/"), true
}
