// Package backup owns the on-disk layout of numbered snapshot directories:
//
//	<root>/<game>/<n>/<age>_<faction>.trn
//
// Snapshot 0 additionally holds the paired order file and, when requested,
// every static file of the game directory. A snapshot is populated behind an
// ".incomplete" marker that is removed last, so an interrupted copy is never
// mistaken for a finished snapshot.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/XenonAtom/Dom6SaveScummer/internal/savefile"
)

// Sentinel errors returned by Store.
var (
	// ErrNotReady means the source game directory has no turn file yet, e.g.
	// a multiplayer game that has not produced its first turn.
	ErrNotReady = errors.New("backup: game has no turn file yet")

	// ErrSnapshotExists means a complete snapshot with the requested number
	// is already on disk.
	ErrSnapshotExists = errors.New("backup: snapshot already exists")

	// ErrInsufficientSpace means the backup volume is below the configured
	// free-space floor.
	ErrInsufficientSpace = errors.New("backup: insufficient free space")
)

const (
	incompleteMarker = ".incomplete"
	dirPermissions   = 0o755
	filePermissions  = 0o644
)

// Snapshot describes one numbered snapshot directory.
type Snapshot struct {
	Game   string
	Number int
	Dir    string
	// Turn is the turn file captured by the snapshot.
	Turn savefile.TurnFile
	// TurnModTime is the modification time of the stored turn file copy,
	// which equals the source modification time at copy time.
	TurnModTime time.Time
	// Files lists the base names written into the snapshot.
	Files []string
}

// Store reads and writes snapshot directories under a backup root. Store
// does not serialize callers; the registry holds a per-game lock around
// every read-highest/create sequence.
type Store struct {
	root         string
	minFreeSpace uint64
	diskSpace    func(path string) (uint64, error) // injectable for tests
	logger       *slog.Logger
}

// NewStore creates a Store rooted at root. minFreeSpace of zero disables the
// free-space guard.
func NewStore(root string, minFreeSpace int64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	var floor uint64
	if minFreeSpace > 0 {
		floor = uint64(minFreeSpace)
	}

	return &Store{
		root:         root,
		minFreeSpace: floor,
		diskSpace:    getDiskSpace,
		logger:       logger,
	}
}

// Root returns the backup root directory.
func (s *Store) Root() string {
	return s.root
}

// GameDir returns the backup directory of a game.
func (s *Store) GameDir(game string) string {
	return filepath.Join(s.root, game)
}

// SnapshotDir returns the directory of snapshot n of a game.
func (s *Store) SnapshotDir(game string, n int) string {
	return filepath.Join(s.root, game, strconv.Itoa(n))
}

// HasHistory reports whether a backup directory exists for game.
func (s *Store) HasHistory(game string) (bool, error) {
	info, err := os.Stat(s.GameDir(game))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("backup: checking history of %s: %w", game, err)
	}

	return info.IsDir(), nil
}

// Games lists the games that have a backup directory, sorted by name.
func (s *Store) Games() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("backup: listing %s: %w", s.root, err)
	}

	var games []string

	for _, e := range entries {
		if e.IsDir() {
			games = append(games, e.Name())
		}
	}

	sort.Strings(games)

	return games, nil
}

// numberedDirs returns the complete integer-named snapshot directories of a
// game in descending order. Non-integer names and directories still carrying
// the incomplete marker are skipped.
func (s *Store) numberedDirs(game string) ([]int, error) {
	entries, err := os.ReadDir(s.GameDir(game))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("backup: listing snapshots of %s: %w", game, err)
	}

	var nums []int

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}

		n, err := strconv.Atoi(e.Name())
		if err != nil || n < 0 || strconv.Itoa(n) != e.Name() {
			s.logger.Debug("skipping non-numeric backup directory",
				slog.String("game", game), slog.String("dir", e.Name()))

			continue
		}

		if s.isIncomplete(game, n) {
			s.logger.Warn("skipping incomplete snapshot",
				slog.String("game", game), slog.Int("number", n))

			continue
		}

		nums = append(nums, n)
	}

	sort.Sort(sort.Reverse(sort.IntSlice(nums)))

	return nums, nil
}

func (s *Store) isIncomplete(game string, n int) bool {
	_, err := os.Lstat(filepath.Join(s.SnapshotDir(game, n), incompleteMarker))
	return err == nil
}

// HighestBackupNumber returns the largest snapshot number of game whose
// directory contains turnFile. ok is false when the game has no history, no
// numbered directories, or none holding that file.
func (s *Store) HighestBackupNumber(game, turnFile string) (n int, ok bool, err error) {
	nums, err := s.numberedDirs(game)
	if err != nil {
		return 0, false, err
	}

	for _, num := range nums {
		if fileExists(filepath.Join(s.SnapshotDir(game, num), turnFile)) {
			return num, true, nil
		}
	}

	return 0, false, nil
}

// MaxSnapshotNumber returns the largest complete snapshot number of game
// regardless of its contents.
func (s *Store) MaxSnapshotNumber(game string) (int, bool, error) {
	nums, err := s.numberedDirs(game)
	if err != nil || len(nums) == 0 {
		return 0, false, err
	}

	return nums[0], true, nil
}

// LatestSnapshot returns the highest complete snapshot that holds a
// recognizable turn file. Directories without one are skipped rather than
// trusted. Returns nil when no such snapshot exists.
func (s *Store) LatestSnapshot(game string) (*Snapshot, error) {
	nums, err := s.numberedDirs(game)
	if err != nil {
		return nil, err
	}

	for _, num := range nums {
		snap, err := s.readSnapshot(game, num)
		if err != nil {
			return nil, err
		}

		if snap != nil {
			return snap, nil
		}

		s.logger.Warn("snapshot has no turn file, skipping",
			slog.String("game", game), slog.Int("number", num))
	}

	return nil, nil
}

// Snapshots lists every complete snapshot of game holding a turn file,
// in ascending order.
func (s *Store) Snapshots(game string) ([]Snapshot, error) {
	nums, err := s.numberedDirs(game)
	if err != nil {
		return nil, err
	}

	snaps := make([]Snapshot, 0, len(nums))

	for i := len(nums) - 1; i >= 0; i-- {
		snap, err := s.readSnapshot(game, nums[i])
		if err != nil {
			return nil, err
		}

		if snap != nil {
			snaps = append(snaps, *snap)
		}
	}

	return snaps, nil
}

// TurnModTime returns the stored modification time of turnFile inside
// snapshot n.
func (s *Store) TurnModTime(game string, n int, turnFile string) (time.Time, error) {
	info, err := os.Stat(filepath.Join(s.SnapshotDir(game, n), turnFile))
	if err != nil {
		return time.Time{}, fmt.Errorf("backup: stat %s in snapshot %d of %s: %w", turnFile, n, game, err)
	}

	return info.ModTime(), nil
}

// readSnapshot returns nil, nil when the directory holds no turn file.
func (s *Store) readSnapshot(game string, n int) (*Snapshot, error) {
	dir := s.SnapshotDir(game, n)

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("backup: reading snapshot %d of %s: %w", n, game, err)
	}

	snap := &Snapshot{Game: game, Number: n, Dir: dir}

	var newest time.Time

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		snap.Files = append(snap.Files, e.Name())

		turn, ok := savefile.ParseTurnFileName(e.Name())
		if !ok {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		// More than one turn file: the newest one is the save stream.
		if snap.Turn.IsZero() || info.ModTime().After(newest) {
			snap.Turn = turn
			snap.TurnModTime = info.ModTime()
			newest = info.ModTime()
		}
	}

	if snap.Turn.IsZero() {
		return nil, nil
	}

	return snap, nil
}

// CreateInitialSnapshot creates snapshot 0 of a newly observed game from its
// source directory: the newest turn file, its order file when present, and,
// with copyStatic, every file that is neither a turn nor an order file.
func (s *Store) CreateInitialSnapshot(game, sourceDir string, copyStatic bool) (*Snapshot, error) {
	turns, err := savefile.FindTurnFiles(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("backup: bootstrapping %s: %w", game, err)
	}

	if len(turns) == 0 {
		return nil, fmt.Errorf("backup: bootstrapping %s: %w", game, ErrNotReady)
	}

	current := turns[0]

	sources := []string{current.Path}

	orderPath := filepath.Join(sourceDir, current.Turn.OrderName())
	if fileExists(orderPath) {
		sources = append(sources, orderPath)
	}

	if copyStatic {
		static, err := staticFiles(sourceDir)
		if err != nil {
			return nil, fmt.Errorf("backup: bootstrapping %s: %w", game, err)
		}

		sources = append(sources, static...)
	}

	snap, err := s.writeSnapshot(game, 0, sources)
	if err != nil {
		return nil, err
	}

	return s.withTurn(snap, current.Turn)
}

// CreateIncrementalSnapshot creates snapshot n holding exactly the changed
// turn file.
func (s *Store) CreateIncrementalSnapshot(game string, n int, turnFilePath string) (*Snapshot, error) {
	turn, ok := savefile.ParseTurnFileName(filepath.Base(turnFilePath))
	if !ok {
		return nil, fmt.Errorf("backup: %s is not a turn file", turnFilePath)
	}

	if _, err := os.Stat(turnFilePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("backup: snapshot %d of %s: %w", n, game, ErrNotReady)
		}

		return nil, fmt.Errorf("backup: stat %s: %w", turnFilePath, err)
	}

	snap, err := s.writeSnapshot(game, n, []string{turnFilePath})
	if err != nil {
		return nil, err
	}

	return s.withTurn(snap, turn)
}

// withTurn fills in the captured turn file. The time is read back from the
// stored copy, so a write racing the copy is attributed to what was stored.
func (s *Store) withTurn(snap *Snapshot, turn savefile.TurnFile) (*Snapshot, error) {
	t, err := s.TurnModTime(snap.Game, snap.Number, turn.Name())
	if err != nil {
		return nil, err
	}

	snap.Turn = turn
	snap.TurnModTime = t

	return snap, nil
}

// DeleteAll removes the entire backup subtree of game.
func (s *Store) DeleteAll(game string) error {
	dir := s.GameDir(game)

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("backup: deleting history of %s: %w", game, err)
	}

	s.logger.Info("deleted backup history", slog.String("game", game), slog.String("dir", dir))

	return nil
}

// writeSnapshot creates snapshot directory n, marks it incomplete, copies
// sources into it, and clears the marker. A leftover incomplete directory
// with the same number is discarded and rebuilt.
func (s *Store) writeSnapshot(game string, n int, sources []string) (*Snapshot, error) {
	if err := s.checkFreeSpace(); err != nil {
		return nil, err
	}

	dir := s.SnapshotDir(game, n)

	if _, err := os.Stat(dir); err == nil {
		if !s.isIncomplete(game, n) {
			return nil, fmt.Errorf("backup: snapshot %d of %s: %w", n, game, ErrSnapshotExists)
		}

		s.logger.Warn("retrying incomplete snapshot",
			slog.String("game", game), slog.Int("number", n))

		if err := os.RemoveAll(dir); err != nil {
			return nil, fmt.Errorf("backup: clearing incomplete snapshot %d of %s: %w", n, game, err)
		}
	}

	if err := os.MkdirAll(s.GameDir(game), dirPermissions); err != nil {
		return nil, fmt.Errorf("backup: creating %s: %w", s.GameDir(game), err)
	}

	if err := os.Mkdir(dir, dirPermissions); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("backup: snapshot %d of %s: %w", n, game, ErrSnapshotExists)
		}

		return nil, fmt.Errorf("backup: creating %s: %w", dir, err)
	}

	marker := filepath.Join(dir, incompleteMarker)
	if err := os.WriteFile(marker, nil, filePermissions); err != nil {
		return nil, fmt.Errorf("backup: marking %s incomplete: %w", dir, err)
	}

	snap := &Snapshot{Game: game, Number: n, Dir: dir}

	for _, src := range sources {
		name := filepath.Base(src)
		if err := copyFile(src, filepath.Join(dir, name)); err != nil {
			return nil, fmt.Errorf("backup: populating snapshot %d of %s: %w", n, game, err)
		}

		snap.Files = append(snap.Files, name)
	}

	if err := os.Remove(marker); err != nil {
		return nil, fmt.Errorf("backup: completing %s: %w", dir, err)
	}

	s.logger.Info("created snapshot",
		slog.String("game", game),
		slog.Int("number", n),
		slog.Int("files", len(snap.Files)),
	)

	return snap, nil
}

func (s *Store) checkFreeSpace() error {
	if s.minFreeSpace == 0 {
		return nil
	}

	if err := os.MkdirAll(s.root, dirPermissions); err != nil {
		return fmt.Errorf("backup: creating %s: %w", s.root, err)
	}

	avail, err := s.diskSpace(s.root)
	if errors.Is(err, errDiskSpaceUnsupported) {
		return nil
	}

	if err != nil {
		s.logger.Warn("free space check failed", slog.String("error", err.Error()))
		return nil
	}

	if avail < s.minFreeSpace {
		return fmt.Errorf("backup: %d bytes available, %d required: %w", avail, s.minFreeSpace, ErrInsufficientSpace)
	}

	return nil
}

// staticFiles returns every regular file in dir that is neither a turn file
// nor an order file.
func staticFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var files []string

	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}

		if savefile.IsTurnFile(e.Name()) || savefile.IsOrderFile(e.Name()) {
			continue
		}

		files = append(files, filepath.Join(dir, e.Name()))
	}

	return files, nil
}

// copyFile copies src to dst and carries the source modification time over,
// so later comparisons against the stored copy see the original write time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermissions)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}

	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("syncing %s: %w", dst, err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", dst, err)
	}

	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("setting times on %s: %w", dst, err)
	}

	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
