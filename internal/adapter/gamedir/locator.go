// Package gamedir finds installed game directories.
package gamedir

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/vertextoedge/modfetch/internal/domain"
	"github.com/vertextoedge/modfetch/internal/port"
)

// steamFolders maps manifest game identifiers to Steam library folder names
var steamFolders = map[string]string{
	"SkyrimSpecialEdition": "The Elder Scrolls V Skyrim Special Edition",
	"Skyrim":               "Skyrim",
	"Fallout4":             "Fallout 4",
	"FalloutNewVegas":      "Fallout New Vegas",
	"Fallout3":             "Fallout 3",
	"Oblivion":             "Oblivion",
	"Morrowind":            "Morrowind",
}

// Locator resolves games from, in order: configured paths, a <GAME>_PATH
// environment variable, and common Steam library roots. Hits are cached.
type Locator struct {
	configured map[string]string
	steamRoots []string
	getenv     func(string) string
	logger     *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

var _ port.GameLocator = (*Locator)(nil)

// New creates a Locator. configured maps game identifiers to directories.
func New(configured map[string]string, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Locator{
		configured: make(map[string]string, len(configured)),
		getenv:     os.Getenv,
		logger:     logger,
		cache:      make(map[string]string),
	}
	for k, v := range configured {
		l.configured[strings.ToLower(k)] = v
	}
	l.steamRoots = defaultSteamRoots(l.getenv)
	return l
}

// GameDir returns the install directory of game
func (l *Locator) GameDir(game string) (string, error) {
	l.mu.Lock()
	if dir, ok := l.cache[game]; ok {
		l.mu.Unlock()
		if isDir(dir) {
			return dir, nil
		}
		l.logger.Warn("cached game location no longer exists", zap.String("game", game), zap.String("path", dir))
		l.mu.Lock()
		delete(l.cache, game)
	}
	l.mu.Unlock()

	dir, how, ok := l.discover(game)
	if !ok {
		return "", fmt.Errorf("%w: %s (set paths.game_dirs or %s)", domain.ErrGameNotFound, game, EnvVar(game))
	}

	l.mu.Lock()
	l.cache[game] = dir
	l.mu.Unlock()

	l.logger.Info("discovered game location",
		zap.String("game", game),
		zap.String("path", dir),
		zap.String("via", how))
	return dir, nil
}

func (l *Locator) discover(game string) (dir, how string, ok bool) {
	if dir := l.configured[strings.ToLower(game)]; dir != "" && isDir(dir) {
		return dir, "config", true
	}
	if dir := l.getenv(EnvVar(game)); dir != "" && isDir(dir) {
		return dir, "env", true
	}
	for _, root := range l.steamRoots {
		dir := filepath.Join(root, "steamapps", "common", SteamFolder(game))
		if isDir(dir) {
			return dir, "steam", true
		}
	}
	return "", "", false
}

// EnvVar returns the environment variable consulted for game
func EnvVar(game string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(game) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	b.WriteString("_PATH")
	return b.String()
}

// SteamFolder returns the Steam library folder name of game
func SteamFolder(game string) string {
	if name, ok := steamFolders[game]; ok {
		return name
	}
	return game
}

func defaultSteamRoots(getenv func(string) string) []string {
	var roots []string
	if runtime.GOOS == "windows" {
		for _, key := range []string{"PROGRAMFILES(X86)", "PROGRAMFILES"} {
			if v := getenv(key); v != "" {
				roots = append(roots, filepath.Join(v, "Steam"))
			}
		}
		return roots
	}
	if home := getenv("HOME"); home != "" {
		roots = append(roots,
			filepath.Join(home, ".steam", "steam"),
			filepath.Join(home, ".local", "share", "Steam"))
	}
	return roots
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
