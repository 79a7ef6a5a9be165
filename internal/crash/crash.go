package crash

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"switchfuzz/config"
	"switchfuzz/internal/layout"
	"switchfuzz/internal/types"
	"switchfuzz/pkg/database"
	"switchfuzz/pkg/telemetry"
	"switchfuzz/pkg/watchdog"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CrashManager copies the crashes of every phase into one archive, one file
// per distinct input, and records them in the database when there is one.
type CrashManager struct {
	db          *gorm.DB
	logger      *zap.Logger
	watchDogFac *watchdog.WatchDogFactory

	archiveDir   string
	pollInterval time.Duration

	crashChan chan types.CrashMessage
	seen      map[string]struct{} // md5 of archived crashes, owned by process
	wg        sync.WaitGroup
	done      chan struct{}
	stopCtx   context.Context
	stop      context.CancelFunc
}

type CrashManagerParams struct {
	fx.In

	Config      *config.AppConfig
	DB          *gorm.DB `optional:"true"`
	Logger      *zap.Logger
	WatchDogFac *watchdog.WatchDogFactory
	Lifecycle   fx.Lifecycle
}

// NewCrashManager returns nil when CRASH_ARCHIVE_DIR is not set.
func NewCrashManager(p CrashManagerParams) *CrashManager {
	if p.Config.CrashArchiveDir == "" {
		p.Logger.Debug("no crash archive configured, crashes stay in the phase dirs")
		return nil
	}

	c := New(p.Config.CrashArchiveDir, p.Config.CrashPollInterval, p.DB, p.WatchDogFac, p.Logger)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return c.Start()
		},
		OnStop: func(ctx context.Context) error {
			c.Stop()
			return nil
		},
	})
	return c
}

func New(archiveDir string, pollInterval time.Duration, db *gorm.DB, watchDogFac *watchdog.WatchDogFactory, logger *zap.Logger) *CrashManager {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}
	stopCtx, stop := context.WithCancel(context.Background())
	return &CrashManager{
		db:           db,
		logger:       logger,
		watchDogFac:  watchDogFac,
		archiveDir:   archiveDir,
		pollInterval: pollInterval,
		crashChan:    make(chan types.CrashMessage, 1024),
		seen:         make(map[string]struct{}),
		done:         make(chan struct{}),
		stopCtx:      stopCtx,
		stop:         stop,
	}
}

func (c *CrashManager) Start() error {
	if err := os.MkdirAll(c.archiveDir, 0o755); err != nil {
		return fmt.Errorf("failed to create crash archive: %w", err)
	}
	c.logger.Debug("starting crash manager", zap.String("archive", c.archiveDir))
	go c.process()
	return nil
}

// Stop ends every watch, archives what is left and returns once done.
func (c *CrashManager) Stop() {
	c.logger.Info("stopping crash manager")
	c.stop()
	c.wg.Wait()
	close(c.crashChan)
	<-c.done
}

// Watch collects crashes written to crashDir until ctx is done. The engine
// may create crashDir late, so it is polled for first.
func (c *CrashManager) Watch(ctx context.Context, phase *types.Phase, crashDir string) {
	tracer := telemetry.FromContext(ctx).Spawn("crash collection")
	tracer.WithAttributes(telemetry.NewSpanAttributes(telemetry.CrashCollection))
	tracer.Start()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer tracer.End()

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-c.stopCtx.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		found := c.watch(ctx, phase, crashDir, tracer)
		tracer.WithAttributes(telemetry.EmptySpanAttributes().WithExtraAttribute("crashes_seen", found))
	}()
}

func (c *CrashManager) watch(ctx context.Context, phase *types.Phase, crashDir string, tracer telemetry.Tracer) int {
	logger := c.logger.With(zap.Int("phase", phase.Index), zap.String("engine", phase.Engine))

	if !c.waitForDir(ctx, crashDir) {
		// the phase ended before the engine made its crash dir
		return 0
	}

	found := 0
	forward := func(path string) {
		if found == 0 {
			tracer.AddEvent("first_crash_found", telemetry.NewEventAttributes(map[string]string{
				"crash_name": filepath.Base(path),
			}))
		}
		found++
		c.crashChan <- types.CrashMessage{CrashFile: path, Phase: phase}
	}

	notify := make(chan string, 1024)
	dog, err := c.watchDogFac.New(ctx, notify, IsCrashFile)
	if err != nil {
		logger.Error("failed to watch crash dir, collecting at phase end only", zap.Error(err))
	} else if err := dog.AddDir(crashDir); err != nil {
		logger.Error("failed to watch crash dir, collecting at phase end only", zap.Error(err))
	}

	// crashes written before the watch started
	c.sweep(crashDir, forward, logger)
	if err == nil {
		for path := range notify {
			forward(path)
		}
	} else {
		<-ctx.Done()
	}
	// crashes written between the last event and the end of the phase
	c.sweep(crashDir, forward, logger)
	return found
}

func (c *CrashManager) waitForDir(ctx context.Context, dir string) bool {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return true
		}
		select {
		case <-ctx.Done():
			info, err := os.Stat(dir)
			return err == nil && info.IsDir()
		case <-ticker.C:
		}
	}
}

func (c *CrashManager) sweep(dir string, forward func(string), logger *zap.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logger.Warn("failed to list crash dir", zap.String("dir", dir), zap.Error(err))
		return
	}
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.Type().IsRegular() && IsCrashFile(path) {
			forward(path)
		}
	}
}

// IsCrashFile drops engine bookkeeping files found next to crashes.
func IsCrashFile(path string) bool {
	name := filepath.Base(path)
	return name != "README.txt" && !strings.HasPrefix(name, ".")
}

func (c *CrashManager) process() {
	defer close(c.done)
	for crash := range c.crashChan {
		if err := c.processCrashFile(crash); err != nil {
			c.logger.Error("failed to process crash file", zap.String("file", crash.CrashFile), zap.Error(err))
		}
	}
}

func (c *CrashManager) processCrashFile(msg types.CrashMessage) error {
	crashData, err := os.ReadFile(msg.CrashFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read crash file: %w", err)
	}
	if len(crashData) == 0 {
		// still being written, the final sweep picks it up
		return nil
	}
	crashMd5 := md5.Sum(crashData)
	hash := hex.EncodeToString(crashMd5[:])
	if _, ok := c.seen[hash]; ok {
		return nil
	}

	crashStore := filepath.Join(c.archiveDir, layout.PhaseDirName(msg.Phase.Engine, msg.Phase.Index))
	if err := os.MkdirAll(crashStore, 0o755); err != nil {
		return fmt.Errorf("failed to create crash store directory: %w", err)
	}
	crashPath := filepath.Join(crashStore, hash)
	if err := os.WriteFile(crashPath, crashData, 0o644); err != nil {
		return fmt.Errorf("failed to write crash file: %w", err)
	}
	c.seen[hash] = struct{}{}

	c.logger.Info("New crash archived",
		zap.Int("phase", msg.Phase.Index),
		zap.String("engine", msg.Phase.Engine),
		zap.String("crash", crashPath))

	if c.db == nil {
		return nil
	}
	crash := database.NewCrash(msg.Phase.Session, msg.Phase.Index, msg.Phase.Engine, hash, crashPath)
	if err := database.AddCrash(context.Background(), c.db, crash); err != nil {
		return fmt.Errorf("failed to record crash: %w", err)
	}
	return nil
}

// Archived lists the archived crash files, for reporting.
func (c *CrashManager) Archived() ([]string, error) {
	return filepath.Glob(filepath.Join(c.archiveDir, "*", "*"))
}
