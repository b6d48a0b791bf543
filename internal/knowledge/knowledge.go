// Package knowledge retrieves business knowledge snippets (prices, policies,
// turnaround times) by vector similarity from a pgvector database.
package knowledge

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pbimprenta/printdesk/internal/llm"
	"github.com/rs/zerolog"
)

// Snippet is one retrieved knowledge chunk.
type Snippet struct {
	ID         int64
	Content    string
	Similarity float64
}

// Retriever finds the snippets most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]Snippet, error)
}

// Nop retrieves nothing. It is used when no knowledge database is set.
type Nop struct{}

// Retrieve implements Retriever.
func (Nop) Retrieve(context.Context, string, int) ([]Snippet, error) { return nil, nil }

// Join renders snippets as a context block for the model.
func Join(snippets []Snippet) string {
	parts := make([]string, 0, len(snippets))
	for _, s := range snippets {
		if c := strings.TrimSpace(s.Content); c != "" {
			parts = append(parts, c)
		}
	}
	return strings.Join(parts, "\n---\n")
}

// querier is the subset of *pgxpool.Pool the retriever uses.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PGRetriever queries the match_documents function of a pgvector schema.
type PGRetriever struct {
	db        querier
	pool      *pgxpool.Pool
	embedder  llm.Embedder
	threshold float64
	log       zerolog.Logger
}

// PGOpts holds parameters for creating a PGRetriever.
type PGOpts struct {
	DatabaseURL    string
	Embedder       llm.Embedder
	MatchThreshold float64
	Logger         zerolog.Logger
}

// NewPG connects to the knowledge database.
func NewPG(ctx context.Context, opts PGOpts) (*PGRetriever, error) {
	if opts.Embedder == nil {
		return nil, fmt.Errorf("knowledge: embedder is required")
	}
	cfg, err := pgxpool.ParseConfig(opts.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("knowledge: parse database url: %w", err)
	}
	cfg.MaxConns = 4
	cfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("knowledge: connect: %w", err)
	}
	r := newPG(pool, opts.Embedder, opts.MatchThreshold, opts.Logger)
	r.pool = pool
	return r, nil
}

func newPG(db querier, embedder llm.Embedder, threshold float64, log zerolog.Logger) *PGRetriever {
	return &PGRetriever{db: db, embedder: embedder, threshold: threshold, log: log}
}

// Close releases the connection pool.
func (r *PGRetriever) Close() {
	if r.pool != nil {
		r.pool.Close()
	}
}

const matchSQL = `SELECT id, content, similarity FROM match_documents($1::vector, $2, $3)`

// Retrieve embeds query and returns up to k snippets above the threshold,
// most similar first.
func (r *PGRetriever) Retrieve(ctx context.Context, query string, k int) ([]Snippet, error) {
	if strings.TrimSpace(query) == "" || k <= 0 {
		return nil, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("knowledge: embed query: %w", err)
	}

	rows, err := r.db.Query(ctx, matchSQL, vectorLiteral(vec), r.threshold, k)
	if err != nil {
		return nil, fmt.Errorf("knowledge: match documents: %w", err)
	}
	defer rows.Close()

	var out []Snippet
	for rows.Next() {
		var s Snippet
		if err := rows.Scan(&s.ID, &s.Content, &s.Similarity); err != nil {
			return nil, fmt.Errorf("knowledge: scan: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge: rows: %w", err)
	}
	r.log.Debug().Int("snippets", len(out)).Msg("knowledge: retrieved")
	return out, nil
}

const insertSQL = `INSERT INTO documents (content, metadata, embedding) VALUES ($1, $2, $3::vector)`

// Add embeds and stores one knowledge chunk.
func (r *PGRetriever) Add(ctx context.Context, content string, metadata map[string]string) error {
	vec, err := r.embedder.Embed(ctx, content)
	if err != nil {
		return fmt.Errorf("knowledge: embed chunk: %w", err)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	if _, err := r.db.Exec(ctx, insertSQL, content, metadata, vectorLiteral(vec)); err != nil {
		return fmt.Errorf("knowledge: insert chunk: %w", err)
	}
	return nil
}

// vectorLiteral formats v in pgvector's text form, e.g. [0.1,0.2].
func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Chunk packs the paragraphs of text into pieces of at most size runes.
// Paragraphs longer than size are split.
func Chunk(text string, size int) []string {
	if size <= 0 {
		return nil
	}
	var chunks []string
	var cur []rune
	flush := func() {
		if len(cur) > 0 {
			chunks = append(chunks, string(cur))
			cur = nil
		}
	}
	for _, para := range strings.Split(text, "\n\n") {
		p := []rune(strings.TrimSpace(para))
		if len(p) == 0 {
			continue
		}
		if len(cur) > 0 && len(cur)+2+len(p) > size {
			flush()
		}
		for len(p) > size {
			flush()
			chunks = append(chunks, string(p[:size]))
			p = p[size:]
		}
		if len(p) == 0 {
			continue
		}
		if len(cur) > 0 {
			cur = append(cur, '\n', '\n')
		}
		cur = append(cur, p...)
	}
	flush()
	return chunks
}
