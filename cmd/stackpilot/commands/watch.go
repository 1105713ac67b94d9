package commands

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

// watchDebounce coalesces editor write bursts into one redeploy.
const watchDebounce = 2 * time.Second

func newWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Redeploy automatically when the descriptor changes",
		Long: `Watch the deployment descriptor and run an update whenever it changes.

Each change is debounced, then the update plan runs: rediscover the
stack, build the new image version, swap the app's image reference.
The stack must already exist; run deploy first.`,
		Example: `  # Watch the default descriptor
  stackpilot watch

  # Watch a staging descriptor
  stackpilot watch -c staging.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, false)
			if err != nil {
				return err
			}
			defer rt.close(ctx)

			watcher, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer watcher.Close()

			// Watch the directory: editors replace files on save, which
			// drops a watch registered on the file itself.
			dir := filepath.Dir(configPath)
			if err := watcher.Add(dir); err != nil {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			target, err := filepath.Abs(configPath)
			if err != nil {
				return err
			}

			rt.logger.WithField("path", configPath).Info("watching descriptor, ctrl-c to stop")

			var timer *time.Timer
			fire := make(chan struct{}, 1)
			for {
				select {
				case <-ctx.Done():
					return nil
				case event, ok := <-watcher.Events:
					if !ok {
						return nil
					}
					if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
						continue
					}
					if abs, err := filepath.Abs(event.Name); err != nil || abs != target {
						continue
					}
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(watchDebounce, func() {
						select {
						case fire <- struct{}{}:
						default:
						}
					})
				case err, ok := <-watcher.Errors:
					if !ok {
						return nil
					}
					rt.logger.WithError(err).Warn("watcher error")
				case <-fire:
					rt.logger.Info("descriptor changed, updating")
					if err := runWatchUpdate(cmd, rt); err != nil {
						rt.logger.WithError(err).Error("update failed, still watching")
					}
				}
			}
		},
	}

	return cmd
}

// runWatchUpdate reloads the descriptor and runs one update on the existing
// runtime. Only the descriptor content changed; store, transcript and
// telemetry stay open across iterations.
func runWatchUpdate(cmd *cobra.Command, rt *runtime) error {
	ctx := cmd.Context()
	if err := rt.reload(); err != nil {
		return err
	}
	rc, err := rt.newRunContext()
	if err != nil {
		return err
	}
	summary, err := rt.seq.Update(ctx, rc)
	if err != nil {
		rt.reportFailure(rc, err)
		return err
	}
	fmt.Print(summary.String())
	return nil
}
