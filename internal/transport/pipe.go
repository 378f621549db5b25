package transport

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const maxPipeLine = 1 << 20

// PipeEnv speaks line-delimited JSON over a reader/writer pair, typically the
// stdin and stdout a host hands to a miniapp it spawned.
type PipeEnv struct {
	r       io.Reader
	w       io.Writer
	globals Globals
	log     zerolog.Logger

	mu       sync.Mutex
	handlers handlerSet

	wg   sync.WaitGroup
	once sync.Once
	done chan struct{}
}

func NewPipeEnv(r io.Reader, w io.Writer, globals Globals, log zerolog.Logger) *PipeEnv {
	if globals == nil {
		globals = ProcessGlobals{}
	}
	e := &PipeEnv{r: r, w: w, globals: globals, log: log, done: make(chan struct{})}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.once.Do(func() { close(e.done) })
		e.read(bufio.NewReaderSize(r, 64*1024))
	}()
	return e
}

// read delivers one message per line until EOF. Lines over maxPipeLine are
// dropped whole and reading resumes after the next newline.
func (e *PipeEnv) read(br *bufio.Reader) {
	var line []byte
	skipping := false
	for {
		chunk, err := br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if !skipping {
				line = append(line, chunk...)
				if len(line) > maxPipeLine {
					skipping = true
					line = line[:0]
				}
			}
			continue
		}
		if skipping {
			skipping = false
			e.log.Debug().Int("max", maxPipeLine).Msg("drop oversized line")
		} else {
			line = append(line, chunk...)
			msg := strings.TrimRight(string(line), "\r\n")
			switch {
			case msg == "":
			case len(msg) > maxPipeLine:
				e.log.Debug().Int("max", maxPipeLine).Msg("drop oversized line")
			default:
				e.handlers.deliver(msg)
			}
		}
		line = line[:0]
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				e.log.Warn().Err(err).Msg("pipe read failed")
			}
			return
		}
	}
}

func (e *PipeEnv) PostMessage(data string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := io.WriteString(e.w, data+"\n"); err != nil {
		return err
	}
	return nil
}

func (e *PipeEnv) NativeBridge() NativeBridge {
	select {
	case <-e.done:
		return nil
	default:
		return e
	}
}

func (e *PipeEnv) Parent() Poster { return nil }

func (e *PipeEnv) Listen(handler func(data any)) func() {
	return e.handlers.add(handler)
}

func (e *PipeEnv) Globals() Globals { return e.globals }

// Done is closed when the read side reaches EOF.
func (e *PipeEnv) Done() <-chan struct{} { return e.done }

// Wait blocks until the reader goroutine exits.
func (e *PipeEnv) Wait() { e.wg.Wait() }

// Close closes the read side when it is an io.Closer and waits for the reader
// goroutine to exit.
func (e *PipeEnv) Close() error {
	var err error
	if c, ok := e.r.(io.Closer); ok {
		err = c.Close()
	}
	e.wg.Wait()
	return err
}
