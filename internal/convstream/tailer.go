package convstream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// tailerPollInterval is how often the tailer retries reading past EOF
// while waiting for the transcript file to grow.
const tailerPollInterval = 200 * time.Millisecond

// tailer follows one JSONL transcript file, delivering each decoded line
// on Events(). Grounded on the original TranscriptWatcher: it can resume
// immediately after a given uuid (cursor resumption) or start from
// end-of-file (new events only), matching spec.md §4.8's "after_uuid used
// only for the initial connection" rule.
type tailer struct {
	path         string
	includeThink bool

	out  chan map[string]any
	stop chan struct{}
	wg   sync.WaitGroup
}

func newTailer(path string, includeThinking bool) *tailer {
	return &tailer{
		path:         path,
		includeThink: includeThinking,
		out:          make(chan map[string]any, 256),
		stop:         make(chan struct{}),
	}
}

// Events returns the channel of decoded transcript lines.
func (t *tailer) Events() <-chan map[string]any { return t.out }

// Start begins tailing. If afterUUID is non-empty, replay begins right
// after the line carrying that uuid; otherwise tailing starts at
// end-of-file so only newly appended lines are delivered.
func (t *tailer) Start(ctx context.Context, afterUUID string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(t.out)
		if err := t.run(ctx, afterUUID); err != nil {
			return
		}
	}()
}

// Stop cancels the tailer and waits for its goroutine to exit.
func (t *tailer) Stop() {
	close(t.stop)
	t.wg.Wait()
}

func (t *tailer) run(ctx context.Context, afterUUID string) error {
	f, err := os.Open(t.path)
	if err != nil {
		return fmt.Errorf("tailer: open %s: %w", t.path, err)
	}
	defer f.Close()

	if afterUUID == "" {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			return fmt.Errorf("tailer: seek %s: %w", t.path, err)
		}
	}
	reader := bufio.NewReaderSize(f, 64*1024)
	foundCursor := afterUUID == ""

	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			var decoded map[string]any
			if jsonErr := json.Unmarshal([]byte(line), &decoded); jsonErr == nil {
				if !foundCursor {
					if uuid, _ := decoded["uuid"].(string); uuid == afterUUID {
						foundCursor = true
					}
					continue
				}
				if !t.includeThink {
					if kind, _ := decoded["type"].(string); kind == "thinking" {
						continue
					}
				}
				select {
				case t.out <- decoded:
				case <-t.stop:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err != nil {
			// EOF: if we never found the cursor (stale/rotated file), start
			// delivering from here on so the consumer isn't stuck forever.
			foundCursor = true
			select {
			case <-t.stop:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(tailerPollInterval):
			}
		}
	}
}
