// Package bookstore is a small traced HTTP service. Each resource exercises
// one way a span can be created and propagated: inner spans, tags on the
// server span, parallel work, asynchronous hand-off and pseudo-async work
// awaited before responding.
package bookstore

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	opentracing "github.com/opentracing/opentracing-go"
	"golang.org/x/sync/errgroup"

	zipkintracer "github.com/openzipkin-contrib/zipkin-go-ottrace"
	tracehttp "github.com/openzipkin-contrib/zipkin-go-ottrace/middleware/http"
)

// Book is a catalogue entry.
type Book struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Store serves the /bookstore resources.
type Store struct {
	tracer opentracing.Tracer
	logger zipkintracer.Logger
	delay  time.Duration

	mu    sync.RWMutex
	books []Book
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for request failures.
func WithLogger(logger zipkintracer.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProcessingDelay sets how long simulated background processing takes.
func WithProcessingDelay(d time.Duration) Option {
	return func(s *Store) { s.delay = d }
}

// WithBooks replaces the initial catalogue.
func WithBooks(books ...Book) Option {
	return func(s *Store) { s.books = append([]Book(nil), books...) }
}

// New returns a Store traced by tracer.
func New(tracer opentracing.Tracer, options ...Option) *Store {
	s := &Store{
		tracer: tracer,
		logger: zipkintracer.NewNopLogger(),
		delay:  50 * time.Millisecond,
		books: []Book{
			{ID: "1", Title: "Apache CXF in Action"},
			{ID: "2", Title: "Mastering Apache CXF"},
		},
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Handler returns the routes wrapped in the tracing server middleware.
func (s *Store) Handler(options ...tracehttp.ServerOption) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /bookstore/books", s.getBooks)
	mux.HandleFunc("GET /bookstore/book/{id}", s.getBook)
	mux.HandleFunc("PUT /bookstore/process", s.processBooks)
	mux.HandleFunc("GET /bookstore/books/async", s.getBooksAsync)
	mux.HandleFunc("GET /bookstore/books/async/notrace", s.getBooksAsyncNoTrace)
	mux.HandleFunc("GET /bookstore/books/pseudo-async", s.getBooksPseudoAsync)
	return tracehttp.NewServerMiddleware(s.tracer, options...)(mux)
}

func (s *Store) snapshot() []Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Book(nil), s.books...)
}

func (s *Store) find(id string) (Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.books {
		if b.ID == id {
			return b, true
		}
	}
	return Book{}, false
}

// wait simulates work, giving up when ctx is done.
func (s *Store) wait(ctx context.Context) error {
	if s.delay <= 0 {
		return nil
	}
	t := time.NewTimer(s.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// getBooks looks the catalogue up inside its own "Get Books" span.
func (s *Store) getBooks(w http.ResponseWriter, r *http.Request) {
	var books []Book
	err := zipkintracer.Trace(r.Context(), s.tracer, "Get Books", func(ctx context.Context) error {
		books = s.snapshot()
		return nil
	})
	s.respond(w, books, err)
}

// getBook tags the server span with the requested id.
func (s *Store) getBook(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if span := opentracing.SpanFromContext(r.Context()); span != nil {
		span.SetTag("book-id", id)
	}

	book, ok := s.find(id)
	if !ok {
		http.Error(w, "book not found", http.StatusNotFound)
		return
	}
	s.respond(w, book, nil)
}

// processBooks processes every book in parallel under a single
// "Processing books" span whose timeline logs the start and the end.
func (s *Store) processBooks(w http.ResponseWriter, r *http.Request) {
	err := zipkintracer.Trace(r.Context(), s.tracer, "Processing books", func(ctx context.Context) error {
		span := opentracing.SpanFromContext(ctx)
		span.LogKV("event", "Processing started")

		g, gctx := errgroup.WithContext(ctx)
		for range s.snapshot() {
			g.Go(func() error { return s.wait(gctx) })
		}
		if err := g.Wait(); err != nil {
			return err
		}

		span.LogKV("event", "Processing finished")
		return nil
	})
	if err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// getBooksAsync suspends the request, which finishes the server span, and
// resumes it from a traced background goroutine.
func (s *Store) getBooksAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracehttp.Suspend(ctx)

	f := zipkintracer.Go(ctx, func(ctx context.Context) ([]Book, error) {
		var books []Book
		err := zipkintracer.Trace(ctx, s.tracer, "Processing books", func(ctx context.Context) error {
			if err := s.wait(ctx); err != nil {
				return err
			}
			books = s.snapshot()
			return nil
		})
		return books, err
	})

	books, err := f.Get(ctx)
	s.respond(w, books, err)
}

// getBooksAsyncNoTrace resumes from a background goroutine that creates no
// span of its own.
func (s *Store) getBooksAsyncNoTrace(w http.ResponseWriter, r *http.Request) {
	f := zipkintracer.Go(r.Context(), func(ctx context.Context) ([]Book, error) {
		if err := s.wait(ctx); err != nil {
			return nil, err
		}
		return s.snapshot(), nil
	})

	books, err := f.Get(r.Context())
	s.respond(w, books, err)
}

// getBooksPseudoAsync hands the work to another goroutine but waits for it
// before responding, so "Processing books" finishes inside the server span.
func (s *Store) getBooksPseudoAsync(w http.ResponseWriter, r *http.Request) {
	f := zipkintracer.Go(r.Context(), func(ctx context.Context) ([]Book, error) {
		var books []Book
		err := zipkintracer.Trace(ctx, s.tracer, "Processing books", func(ctx context.Context) error {
			books = s.snapshot()
			return nil
		})
		return books, err
	})

	books, err := f.Get(r.Context())
	s.respond(w, books, err)
}

func (s *Store) respond(w http.ResponseWriter, v interface{}, err error) {
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		_ = s.logger.Log("msg", "encoding response", "err", err)
	}
}

func (s *Store) fail(w http.ResponseWriter, err error) {
	_ = s.logger.Log("msg", "request failed", "err", err)
	http.Error(w, err.Error(), http.StatusInternalServerError)
}
