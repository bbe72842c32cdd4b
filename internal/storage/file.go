package storage

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"chat-cache/internal/llm"
)

var (
	ErrOpen   = errors.New("cache: open")
	ErrEncode = errors.New("cache: encode")
	ErrWrite  = errors.New("cache: write")
	ErrClosed = errors.New("cache: closed")
)

// pathLock serializes every Cache in the process that points at the same file.
// reserved is the highest id number handed out so far, which keeps two caches
// from minting the same id before either of them has written a line.
type pathLock struct {
	mu       sync.Mutex
	reserved int
}

var pathLocks sync.Map

func lockFor(path string) *pathLock {
	l, _ := pathLocks.LoadOrStore(path, &pathLock{})
	return l.(*pathLock)
}

// Cache is an append-only JSONL log of history snapshots.
type Cache struct {
	path  string
	lock  *pathLock
	f     *os.File
	debug io.Writer
}

type Option func(*Cache)

// WithDebugWriter sets where debug appends go. Defaults to stdout.
func WithDebugWriter(w io.Writer) Option {
	return func(c *Cache) {
		if w != nil {
			c.debug = w
		}
	}
}

// DefaultPath lays out <root>/<parts...>/log.jsonl.
func DefaultPath(root string, parts ...string) string {
	elems := append([]string{root}, parts...)
	elems = append(elems, FileName)
	return filepath.Join(elems...)
}

func Open(path string, opts ...Option) (*Cache, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(ErrOpen, "resolve %s: %v", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, errors.Wrapf(ErrOpen, "ensure cache dir: %v", err)
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrapf(ErrOpen, "open %s: %v", abs, err)
	}
	c := &Cache{path: abs, lock: lockFor(abs), f: f, debug: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}

	n, err := c.Size()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	log.Debug().Str("path", abs).Int("records", n).Msg("cache opened")
	return c, nil
}

func (c *Cache) Path() string { return c.path }

// Size counts line-delimited records currently in the file.
func (c *Cache) Size() (int, error) {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	return c.countLocked()
}

// NextID mints FormatID(size+1). Ids already handed out in this process are
// never minted again even if nothing was written under them.
func (c *Cache) NextID() (string, error) {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	n, err := c.countLocked()
	if err != nil {
		return "", err
	}
	if n < c.lock.reserved {
		n = c.lock.reserved
	}
	c.lock.reserved = n + 1
	return FormatID(n + 1), nil
}

// Append logs one snapshot of messages under id. With debug set the line is
// written to the debug writer and the file is left untouched.
func (c *Cache) Append(id string, messages []llm.Message, debug bool) error {
	line, err := encodeRecord(id, messages)
	if err != nil {
		return err
	}

	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	if c.f == nil {
		return ErrClosed
	}
	if debug {
		if _, err := c.debug.Write(line); err != nil {
			return errors.Wrapf(ErrWrite, "debug output: %v", err)
		}
		return nil
	}
	// a single write per line keeps O_APPEND writers from interleaving
	if _, err := c.f.Write(line); err != nil {
		return errors.Wrapf(ErrWrite, "%s: %v", c.path, err)
	}
	log.Debug().Str("id", id).Int("messages", len(messages)).Str("path", c.path).Msg("cache record appended")
	return nil
}

// Load reads every record back in file order. Lines that do not decode are
// skipped.
func (c *Cache) Load() ([]Record, error) {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	if c.f == nil {
		return nil, ErrClosed
	}
	f, err := os.Open(c.path)
	if err != nil {
		return nil, errors.Wrapf(ErrOpen, "open read: %v", err)
	}
	defer func() { _ = f.Close() }()

	s := bufio.NewScanner(f)
	buf := make([]byte, 0, 1024*1024)
	s.Buffer(buf, 10*1024*1024)
	var records []Record
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 {
			continue
		}
		var obj map[string]string
		if err := json.Unmarshal(line, &obj); err != nil {
			log.Warn().Err(err).Int("line", lineNo).Str("path", c.path).Msg("skipping malformed cache line")
			continue
		}
		for id, msgs := range obj {
			records = append(records, Record{ID: id, Messages: msgs})
		}
	}
	if err := s.Err(); err != nil {
		return nil, errors.Wrap(err, "scan cache")
	}
	return records, nil
}

func (c *Cache) Close() error {
	c.lock.mu.Lock()
	defer c.lock.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}

func (c *Cache) countLocked() (int, error) {
	if c.f == nil {
		return 0, ErrClosed
	}
	f, err := os.Open(c.path)
	if err != nil {
		return 0, errors.Wrapf(ErrOpen, "open read: %v", err)
	}
	defer func() { _ = f.Close() }()
	n, err := countLines(f)
	if err != nil {
		return 0, errors.Wrap(err, "count cache lines")
	}
	return n, nil
}

func countLines(r io.Reader) (int, error) {
	buf := make([]byte, 1024*1024)
	lines := 0
	for {
		n, err := r.Read(buf)
		lines += bytes.Count(buf[:n], []byte{'\n'})
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, err
		}
	}
}

func encodeRecord(id string, messages []llm.Message) ([]byte, error) {
	if messages == nil {
		messages = []llm.Message{}
	}
	snapshot, err := json.Marshal(messages)
	if err != nil {
		return nil, errors.Wrapf(ErrEncode, "messages: %v", err)
	}
	line, err := json.Marshal(map[string]string{id: string(snapshot)})
	if err != nil {
		return nil, errors.Wrapf(ErrEncode, "record: %v", err)
	}
	return append(line, '\n'), nil
}
