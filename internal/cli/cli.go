// Package cli implements the pixelpack command-line interface: render
// picture, img and placeholder markup from source files without the API.
package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/dunamismax/pixelpack/internal/cache"
	"github.com/dunamismax/pixelpack/internal/config"
	"github.com/dunamismax/pixelpack/internal/domain"
	"github.com/dunamismax/pixelpack/internal/picture"
	"github.com/dunamismax/pixelpack/internal/pipeline"
	"github.com/dunamismax/pixelpack/internal/store"
)

const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds state shared by all commands.
type CLI struct {
	Logger *log.Logger

	settingsFile string
	engine       config.EngineConfig
	cacheBackend string
	postgresDSN  string
}

func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: log.NewWithOptions(w, log.Options{
			ReportTimestamp: true,
			TimeFormat:      "15:04:05.00",
			Level:           level,
			Prefix:          "pixelpack",
		}),
	}
}

func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand builds the root command with every subcommand registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "pixelpack",
		Short:        "Render responsive image markup",
		Long:         `pixelpack renders <picture>, <img> and placeholder markup for local images, transforming variants into an output directory.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.settingsFile, "config", "", "TOML settings file")
	flags.StringVar(&c.engine.Webroot, "webroot", ".", "directory raw image paths are resolved against")
	flags.StringVar(&c.engine.OutputDir, "output-dir", "imager", "directory transformed variants are written to")
	flags.StringVar(&c.engine.OutputURL, "output-url", "/imager", "public URL prefix of the output directory")
	flags.StringVar(&c.cacheBackend, "cache", "memory", "descriptor cache: memory, none")
	flags.StringVar(&c.postgresDSN, "postgres-dsn", "", "resolve {asset: id} images from this Postgres database")

	root.AddCommand(c.pictureCommand())
	root.AddCommand(c.imgCommand())
	root.AddCommand(c.placeholderCommand())
	root.AddCommand(c.transformCommand())
	return root
}

// session is one command's wired engine, builder and asset resolver.
type session struct {
	builder *picture.Builder
	resolve picture.AssetResolver
	close   func()
}

func (c *CLI) newSession(ctx context.Context) (*session, error) {
	settings := config.Defaults()
	if c.settingsFile != "" {
		o, err := config.LoadSettingsFile(c.settingsFile)
		if err != nil {
			return nil, err
		}
		settings = settings.Resolve(&o)
	}

	descriptorCache, err := cache.New(c.cacheBackend, nil)
	if err != nil {
		return nil, err
	}

	engineCfg := c.engine
	engineCfg.Output = "local"
	engine, err := pipeline.NewFromConfig(engineCfg, nil, descriptorCache, time.Hour, c.Logger)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	s := &session{
		builder: picture.NewBuilder(engine, settings, c.Logger),
		close:   func() { _ = descriptorCache.Close() },
	}
	if c.postgresDSN != "" {
		assets, err := store.NewPostgresAssetStore(ctx, c.postgresDSN)
		if err != nil {
			s.close()
			return nil, err
		}
		s.resolve = func(ctx context.Context, id string) (*domain.Asset, error) {
			return store.Lookup(ctx, assets, id)
		}
		closeCache := s.close
		s.close = func() {
			_ = assets.Close()
			closeCache()
		}
	}
	return s, nil
}
