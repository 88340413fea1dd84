// Package elmworker obtains the project configuration from the Elm side of
// the starter: it compiles Worker.elm, runs it under node with the runtime
// flags and decodes the record the worker sends back through its port.
package elmworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/JakeFAU/elm-starter/internal/fsutil"
)

// Conf is the immutable project configuration produced by the worker.
type Conf struct {
	Dir   Dirs          `json:"dir"`
	File  Files         `json:"file"`
	Files []fsutil.File `json:"files"`

	ServerDev    Command `json:"serverDev"`
	ServerBuild  Command `json:"serverBuild"`
	ServerStatic Command `json:"serverStatic"`

	MainConf       MainConf `json:"mainConf"`
	StartingDomain string   `json:"startingDomain"`
	BatchesSize    int      `json:"batchesSize"`
	Headless       bool     `json:"headless"`

	Snapshots        bool   `json:"snapshots"`
	SnapshotsQuality int    `json:"snapshotsQuality"`
	SnapshotWidth    int    `json:"snapshotWidth"`
	SnapshotHeight   int    `json:"snapshotHeight"`
	PagesName        string `json:"pagesName"`
	SnapshotFileName string `json:"snapshotFileName"`
	HTMLToReinject   string `json:"htmlToReinject"`
}

// Dirs lists the directories the starter works with.
type Dirs struct {
	Pw           string `json:"pw"`
	Bin          string `json:"bin"`
	IgnoredByGit string `json:"ignoredByGit"`
	Temp         string `json:"temp"`
	Assets       string `json:"assets"`
	AssetsDev    string `json:"assetsDev"`
	Dev          string `json:"dev"`
	DevAssets    string `json:"devAssets"`
	Build        string `json:"build"`
	ElmStartSrc  string `json:"elmStartSrc"`
}

// Files lists individual files the starter works with.
type Files struct {
	ElmWorker string `json:"elmWorker"`
	JsStarter string `json:"jsStarter"`
	MainElm   string `json:"mainElm"`
	IndexElm  string `json:"indexElm"`
}

// Command is an external command line.
type Command struct {
	Command    string   `json:"command"`
	Parameters []string `json:"parameters"`
}

// Empty reports whether no command is configured.
func (c Command) Empty() bool {
	return strings.TrimSpace(c.Command) == ""
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Parameters, " "))
}

// MainConf carries the site-level settings shared with the Elm app.
type MainConf struct {
	URLs   []string `json:"urls"`
	Domain string   `json:"domain"`
}

// Validate checks the invariants the commands rely on.
func (c Conf) Validate() error {
	var errs []error
	if c.Dir.Build == "" {
		errs = append(errs, errors.New("dir.build is required"))
	}
	if c.Dir.Dev == "" {
		errs = append(errs, errors.New("dir.dev is required"))
	}
	if c.BatchesSize < 1 {
		errs = append(errs, fmt.Errorf("batchesSize must be >= 1, got %d", c.BatchesSize))
	}
	if c.SnapshotsQuality < 0 || c.SnapshotsQuality > 100 {
		errs = append(errs, fmt.Errorf("snapshotsQuality must be within 0..100, got %d", c.SnapshotsQuality))
	}
	if c.SnapshotWidth <= 0 || c.SnapshotHeight <= 0 {
		errs = append(errs, fmt.Errorf("snapshot size must be positive, got %dx%d", c.SnapshotWidth, c.SnapshotHeight))
	}
	if c.PagesName == "" {
		errs = append(errs, errors.New("pagesName is required"))
	}
	for _, u := range c.MainConf.URLs {
		if !strings.HasPrefix(u, "/") {
			errs = append(errs, fmt.Errorf("mainConf.urls: %q must start with /", u))
		}
	}
	return errors.Join(errs...)
}

// Decode reads and validates a conf document.
func Decode(r io.Reader) (Conf, error) {
	var conf Conf
	if err := json.NewDecoder(r).Decode(&conf); err != nil {
		return Conf{}, fmt.Errorf("decode conf: %w", err)
	}
	if err := conf.Validate(); err != nil {
		return Conf{}, fmt.Errorf("invalid conf: %w", err)
	}
	return conf, nil
}

// LoadFile decodes a conf saved as JSON, skipping the Elm worker.
func LoadFile(path string) (Conf, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the tool config.
	if err != nil {
		return Conf{}, fmt.Errorf("open conf file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()
	conf, err := Decode(f)
	if err != nil {
		return Conf{}, fmt.Errorf("%s: %w", path, err)
	}
	return conf, nil
}

// FileLoader serves a saved conf regardless of the requested env.
type FileLoader struct {
	Path string
}

// Load decodes the conf file.
func (l FileLoader) Load(_ context.Context, _ Env) (Conf, error) {
	return LoadFile(l.Path)
}
