// Package filesink implements the FileSink capability: a topic-scoped
// output directory with batched append-and-flush semantics (spec.md
// §4.8).
package filesink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/attrforge/swarm/internal/errs"
)

// DefaultPendingWriteLimit is spec.md §7's default overflow cap before
// the orchestrator shuts down with code 2.
const DefaultPendingWriteLimit = 10_000

// Entry is one unique attribute plus its origin metadata, the shape
// persisted into output.json (spec.md §4.8, §6).
type Entry struct {
	Attr       string    `json:"attr"`
	ProducerID string    `json:"producer_id"`
	ProviderID string    `json:"provider_id"`
	Model      string    `json:"model"`
	Timestamp  time.Time `json:"ts"`
}

// Metadata is the final run summary written to metadata.json on shutdown
// (spec.md §4.8).
type Metadata struct {
	Topic             string         `json:"topic"`
	StartedAt         time.Time      `json:"started_at"`
	EndedAt           time.Time      `json:"ended_at"`
	TotalUnique       int            `json:"total_unique"`
	ProviderBreakdown map[string]int `json:"provider_breakdown"`
	HitBudget         bool           `json:"hit_budget"`
	Crashed           bool           `json:"crashed"`
	Stopped           bool           `json:"stopped"`
}

// Sink owns a single TopicRun's output directory. It is touched only by
// the orchestrator's central event loop (spec.md §3 ownership rule) and
// holds no internal lock.
type Sink struct {
	dir           string
	pendingLimit  int
	txtFile       *os.File
	entries       []Entry // full first-seen-order history, for output.json/metadata
	unflushedTxt  []string
	overflow      *overflowStore
	overflowCount int
}

// Open creates (overwriting if present) outputs/<sanitized-topic>/ under
// baseDir, writes topic.txt, and prepares output.txt for append (spec.md
// §4.8: "If directory exists, it is removed and recreated").
func Open(baseDir, topic string, producerCount int, initialPrompt string, weights map[string]float64, pendingLimit int) (*Sink, error) {
	if pendingLimit <= 0 {
		pendingLimit = DefaultPendingWriteLimit
	}

	dir := filepath.Join(baseDir, SanitizeTopic(topic))
	if err := os.RemoveAll(dir); err != nil {
		return nil, errs.Wrap(errs.ErrCodeSinkDirConflict, fmt.Errorf("remove existing output dir: %w", err))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrCodeSinkWriteFailed, fmt.Errorf("create output dir: %w", err))
	}

	header := fmt.Sprintf("topic: %s\nstart_ts: %s\nproducers: %d\nprompt: %s\nweights: %v\n",
		topic, time.Now().Format(time.RFC3339), producerCount, initialPrompt, weights)
	if err := os.WriteFile(filepath.Join(dir, "topic.txt"), []byte(header), 0o644); err != nil {
		return nil, errs.Wrap(errs.ErrCodeSinkWriteFailed, fmt.Errorf("write topic.txt: %w", err))
	}

	f, err := os.OpenFile(filepath.Join(dir, "output.txt"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeSinkWriteFailed, fmt.Errorf("open output.txt: %w", err))
	}

	overflow, err := openOverflowStore(filepath.Join(dir, ".overflow.bolt"))
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Sink{
		dir:          dir,
		pendingLimit: pendingLimit,
		txtFile:      f,
		overflow:     overflow,
	}, nil
}

// Append records a newly-unique attribute in first-seen order. It does
// not touch disk; Flush does (spec.md §4.8: "batched and flushed on
// timer... or on clean shutdown").
func (s *Sink) Append(e Entry) {
	s.entries = append(s.entries, e)
	s.unflushedTxt = append(s.unflushedTxt, e.Attr)
}

// Flush writes every unflushed output.txt line. A write failure pushes
// the affected lines into the durable overflow queue instead of losing
// them; once the overflow queue itself exceeds pendingLimit,
// ErrCodeSinkOverflow is returned so the orchestrator can shut down with
// code 2 (spec.md §7).
func (s *Sink) Flush() error {
	if len(s.unflushedTxt) == 0 {
		return s.retryOverflow()
	}

	for _, line := range s.unflushedTxt {
		if _, err := fmt.Fprintln(s.txtFile, line); err != nil {
			if pushErr := s.overflow.Push(line); pushErr != nil {
				return errs.Wrap(errs.ErrCodeSinkWriteFailed, pushErr)
			}
			s.overflowCount++
		}
	}
	s.unflushedTxt = s.unflushedTxt[:0]

	if s.overflowCount > s.pendingLimit {
		return errs.New(errs.ErrCodeSinkOverflow,
			fmt.Sprintf("pending write overflow exceeded %d entries", s.pendingLimit))
	}

	return s.retryOverflow()
}

// retryOverflow attempts to drain any previously-queued lines back into
// output.txt now that the filesystem may have recovered.
func (s *Sink) retryOverflow() error {
	count, err := s.overflow.Count()
	if err != nil || count == 0 {
		return nil
	}

	lines, err := s.overflow.Drain()
	if err != nil {
		return nil
	}

	for i, line := range lines {
		if _, err := fmt.Fprintln(s.txtFile, line); err != nil {
			// Still unhealthy: put this line and the rest back and give
			// up this round.
			for _, rest := range lines[i:] {
				_ = s.overflow.Push(rest)
			}
			return nil
		}
		s.overflowCount--
	}
	return nil
}

// WriteJSON rewrites output.json with the full first-seen-order history.
func (s *Sink) WriteJSON() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return errs.Wrap(errs.ErrCodeSinkWriteFailed, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "output.json"), data, 0o644); err != nil {
		return errs.Wrap(errs.ErrCodeSinkWriteFailed, err)
	}
	return nil
}

// WriteMetadata writes the final run summary.
func (s *Sink) WriteMetadata(m Metadata) error {
	m.TotalUnique = len(s.entries)
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errs.Wrap(errs.ErrCodeSinkWriteFailed, err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, "metadata.json"), data, 0o644); err != nil {
		return errs.Wrap(errs.ErrCodeSinkWriteFailed, err)
	}
	return nil
}

// Len returns the number of unique attributes recorded so far.
func (s *Sink) Len() int {
	return len(s.entries)
}

// Close flushes, writes output.json, and releases file handles. Callers
// should call WriteMetadata separately once final counts are known.
func (s *Sink) Close() error {
	flushErr := s.Flush()
	jsonErr := s.WriteJSON()
	closeErr := s.txtFile.Close()
	overflowErr := s.overflow.Close()

	for _, err := range []error{flushErr, jsonErr, closeErr, overflowErr} {
		if err != nil {
			return err
		}
	}
	return nil
}
