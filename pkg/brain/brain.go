// Package brain implements a persistent Markov-chain conversation
// brain: it learns token chains from text and generates replies by
// random-walking the learned graph and scoring the candidates.
package brain

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/kittclouds/gobe/internal/store"
	"github.com/kittclouds/gobe/pkg/stem"
	"github.com/kittclouds/gobe/pkg/tokenizer"
)

const (
	// endToken is the chain-boundary sentinel stored as an empty-string
	// token row. An end context is a node holding only this token.
	endToken = ""

	// spaceTokenID marks a single whitespace between contexts. It is
	// never persisted as a token row.
	spaceTokenID int64 = -1

	// unknownTokenID marks input words absent from the vocabulary.
	unknownTokenID int64 = 0

	fallbackReply = "I don't know enough to answer you yet!"

	// maxBarrenAttempts stops the reply loop when the graph can
	// produce no candidate at all, so Reply always returns.
	maxBarrenAttempts = 1024
)

// Config holds the tunables for opening a brain. Zero values fall back
// to the defaults, except StemmerLang, where empty means no stemming
// for new brain files. Rand and Now exist so tests can pin randomness
// and the reply clock.
type Config struct {
	Order       int           // Markov order for new brain files
	Tokenizer   string        // "Cobe" or "MegaHAL", for new brain files
	StemmerLang string        // stemmer language for new brain files
	ReplyWindow time.Duration // wall-clock budget of the reply loop
	Rand        *rand.Rand
	Now         func() time.Time
}

// DefaultConfig returns the stock configuration: order 3, the Cobe
// tokenizer, English stemming and a 500 ms reply window.
func DefaultConfig() Config {
	return Config{
		Order:       3,
		Tokenizer:   "Cobe",
		StemmerLang: "english",
		ReplyWindow: 500 * time.Millisecond,
	}
}

// Brain composes the tokenizer, stemmer, graph store and scorer group.
// It is single-threaded; all methods run on the caller's goroutine and
// a single process must own the underlying file.
type Brain struct {
	graph     *store.Store
	tokenizer tokenizer.Tokenizer
	stemmer   stem.Stemmer
	scorers   *ScorerGroup

	order       int
	rng         *rand.Rand
	now         func() time.Time
	replyWindow time.Duration
	batchMode   bool

	endTokenID   int64
	endContextID int64
}

// Open opens the brain file at path with the default configuration,
// initializing it when absent.
func Open(path string) (*Brain, error) {
	return OpenConfig(path, DefaultConfig())
}

// OpenConfig opens the brain file at path. For existing files the
// persisted order, tokenizer and stemmer language win over cfg.
func OpenConfig(path string, cfg Config) (*Brain, error) {
	def := DefaultConfig()
	if cfg.Order <= 0 {
		cfg.Order = def.Order
	}
	if cfg.Tokenizer == "" {
		cfg.Tokenizer = def.Tokenizer
	}
	if cfg.ReplyWindow <= 0 {
		cfg.ReplyWindow = def.ReplyWindow
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	g, err := store.Open(path, store.Params{
		Order:     cfg.Order,
		Tokenizer: cfg.Tokenizer,
		Rand:      cfg.Rand,
	})
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.New(g.TokenizerName())
	if err != nil {
		g.Close()
		return nil, err
	}

	b := &Brain{
		graph:       g,
		tokenizer:   tok,
		order:       g.Order(),
		rng:         cfg.Rand,
		now:         cfg.Now,
		replyWindow: cfg.ReplyWindow,
	}

	if err := b.initStemmer(cfg.StemmerLang); err != nil {
		g.Close()
		return nil, err
	}

	b.scorers = NewScorerGroup()
	b.scorers.AddScorer(1.0, NewCobeScorer())
	b.scorers.AddScorer(-1.0, IdentityScorer{})

	if err := b.initEndContext(); err != nil {
		g.Close()
		return nil, err
	}

	return b, nil
}

// Close releases the underlying store.
func (b *Brain) Close() error {
	return b.graph.Close()
}

// Stats summarizes the learned graph.
type Stats struct {
	Order     int
	Tokenizer string
	Stemmer   string // empty when stemming is off
	Tokens    int64
	Nodes     int64
	Edges     int64
	Stems     int64
}

// Stats reports the brain's configuration and table sizes.
func (b *Brain) Stats() (Stats, error) {
	st := Stats{Order: b.order, Tokenizer: b.graph.TokenizerName()}

	lang, ok, err := b.graph.GetInfo("stemmer")
	if err != nil {
		return Stats{}, err
	}
	if ok {
		st.Stemmer = lang
	}

	for _, c := range []struct {
		dst   *int64
		count func() (int64, error)
	}{
		{&st.Tokens, b.graph.TokenCount},
		{&st.Nodes, b.graph.NodeCount},
		{&st.Edges, b.graph.EdgeCount},
		{&st.Stems, b.graph.StemCount},
	} {
		if *c.dst, err = c.count(); err != nil {
			return Stats{}, err
		}
	}

	return st, nil
}

// Scorers exposes the scorer group so frontends can add their own
// weighted scorers (anti-parrot variants, blocklists) without touching
// the brain internals.
func (b *Brain) Scorers() *ScorerGroup {
	return b.scorers
}

func (b *Brain) initStemmer(configLang string) error {
	lang, ok, err := b.graph.GetInfo("stemmer")
	if err != nil {
		return fmt.Errorf("read stemmer language: %w", err)
	}
	if !ok {
		// Only a file this open created gets the configured language.
		// A missing attribute on an existing brain means stemming was
		// removed; re-enabling it here would leave old vocabulary
		// without stem rows.
		if !b.graph.Fresh() || configLang == "" {
			return nil
		}
		lang = configLang
		if err := b.graph.SetInfo("stemmer", lang); err != nil {
			return fmt.Errorf("record stemmer language: %w", err)
		}
	}

	b.stemmer, err = stem.New(lang)
	return err
}

func (b *Brain) initEndContext() error {
	id, err := b.graph.GetOrCreateToken(endToken, b.stemmer)
	if err != nil {
		return fmt.Errorf("create end token: %w", err)
	}
	b.endTokenID = id

	endContext := make([]int64, b.order)
	for i := range endContext {
		endContext[i] = id
	}
	b.endContextID, err = b.graph.GetNodeByTokens(endContext)
	if err != nil {
		return fmt.Errorf("create end context: %w", err)
	}
	return nil
}

// =============================================================================
// Learning
// =============================================================================

// Learn tokenizes text and folds its chain of contexts into the graph.
// Inputs with fewer than three non-space tokens are ignored. Outside
// batch mode the call commits exactly once.
func (b *Brain) Learn(text string) error {
	return b.learnTokens(b.tokenizer.Split(text))
}

func (b *Brain) learnTokens(tokens []string) error {
	count := 0
	for _, t := range tokens {
		if t != " " {
			count++
		}
	}
	if count < 3 {
		return nil
	}

	if !b.batchMode {
		if err := b.graph.Begin(); err != nil {
			return err
		}
		defer b.graph.Rollback()
	}

	tokenIDs := make([]int64, 0, len(tokens))
	for _, t := range tokens {
		if t == " " {
			tokenIDs = append(tokenIDs, spaceTokenID)
			continue
		}
		id, err := b.graph.GetOrCreateToken(t, b.stemmer)
		if err != nil {
			return err
		}
		tokenIDs = append(tokenIDs, id)
	}

	contexts := b.toContexts(tokenIDs)

	// Adjacent contexts overlap by order-1 tokens, so the next node of
	// one edge is the prev node of the following one.
	var prevID int64
	for i := 1; i < len(contexts); i++ {
		if i == 1 {
			id, err := b.graph.GetNodeByTokens(contexts[0].ids)
			if err != nil {
				return err
			}
			prevID = id
		}

		nextID, err := b.graph.GetNodeByTokens(contexts[i].ids)
		if err != nil {
			return err
		}
		if err := b.graph.AddEdge(prevID, nextID, contexts[i].hasSpace); err != nil {
			return err
		}
		prevID = nextID
	}

	if !b.batchMode {
		return b.graph.Commit()
	}
	return nil
}

type learnContext struct {
	ids      []int64
	hasSpace bool
}

// toContexts slides an order-sized window across the end-padded token
// chain. Space sentinels never enter the window; they flag the context
// emitted after them as whitespace-separated.
func (b *Brain) toContexts(tokenIDs []int64) []learnContext {
	chain := make([]int64, 0, len(tokenIDs)+2*b.order)
	for i := 0; i < b.order; i++ {
		chain = append(chain, b.endTokenID)
	}
	chain = append(chain, tokenIDs...)
	for i := 0; i < b.order; i++ {
		chain = append(chain, b.endTokenID)
	}

	var contexts []learnContext
	window := make([]int64, 0, b.order)
	hasSpace := false

	for _, id := range chain {
		if id == spaceTokenID {
			hasSpace = true
			continue
		}
		window = append(window, id)
		if len(window) == b.order {
			ids := make([]int64, b.order)
			copy(ids, window)
			contexts = append(contexts, learnContext{ids: ids, hasSpace: hasSpace})
			hasSpace = false
			window = window[1:]
		}
	}

	return contexts
}

// StartBatchLearning suppresses per-call commits and swaps the reply
// indexes for a learn index. Callers must pair it with
// StopBatchLearning; a crash mid-batch may corrupt the file.
func (b *Brain) StartBatchLearning() error {
	if b.batchMode {
		return errors.New("batch learning already started")
	}
	if err := b.graph.StartBatch(); err != nil {
		return err
	}
	b.batchMode = true
	return nil
}

// StopBatchLearning commits the batch and restores reply indexes.
func (b *Brain) StopBatchLearning() error {
	if !b.batchMode {
		return errors.New("batch learning not started")
	}
	b.batchMode = false
	return b.graph.StopBatch()
}

// =============================================================================
// Stemmer management
// =============================================================================

// SetStemmer switches the stemmer language and rebuilds every stem row.
func (b *Brain) SetStemmer(lang string) error {
	stemmer, err := stem.New(lang)
	if err != nil {
		return err
	}

	if err := b.graph.Begin(); err != nil {
		return err
	}
	defer b.graph.Rollback()

	if err := b.graph.DeleteStems(); err != nil {
		return err
	}
	if err := b.graph.RebuildStems(stemmer); err != nil {
		return err
	}
	if err := b.graph.SetInfo("stemmer", lang); err != nil {
		return err
	}
	if err := b.graph.Commit(); err != nil {
		return err
	}

	b.stemmer = stemmer
	return nil
}

// DelStemmer removes all stems and the recorded language.
func (b *Brain) DelStemmer() error {
	if err := b.graph.Begin(); err != nil {
		return err
	}
	defer b.graph.Rollback()

	if err := b.graph.DeleteStems(); err != nil {
		return err
	}
	if err := b.graph.DelInfo("stemmer"); err != nil {
		return err
	}
	if err := b.graph.Commit(); err != nil {
		return err
	}

	b.stemmer = nil
	return nil
}

// =============================================================================
// Reply
// =============================================================================

// Reply generates a response to text: it walks the graph from pivots
// drawn from the input, scores every candidate found inside the reply
// window and renders the best one. The returned string is non-empty; a
// brain too small to answer yields a fixed fallback.
func (b *Brain) Reply(text string) (string, error) {
	tokens := b.tokenizer.Split(text)

	inputIDs := make([]int64, len(tokens))
	for i, t := range tokens {
		if t == " " {
			inputIDs[i] = spaceTokenID
			continue
		}
		id, ok, err := b.graph.GetTokenByText(t)
		if err != nil {
			return "", err
		}
		if !ok {
			inputIDs[i] = unknownTokenID
			continue
		}
		inputIDs[i] = id
	}

	pivots, err := b.pivotSet(tokens, inputIDs)
	if err != nil {
		return "", err
	}
	if pivots.len() == 0 {
		if err := b.babble(pivots); err != nil {
			return "", err
		}
	}
	if pivots.len() == 0 {
		return fallbackReply, nil
	}

	deadline := b.now().Add(b.replyWindow)
	seen := make(map[string]struct{})

	var best *Reply
	bestScore := -1.0

	// Keep walking until the window closes, but never return without a
	// candidate while one may still exist.
	for attempts := 0; best == nil || b.now().Before(deadline); attempts++ {
		if best == nil && attempts >= maxBarrenAttempts {
			break
		}

		reply, err := b.generateReply(pivots, tokens, inputIDs)
		if err != nil {
			return "", err
		}
		if reply == nil {
			continue
		}

		key := reply.edgeKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		score, err := b.scorers.Score(reply)
		if err != nil {
			return "", err
		}
		if score > bestScore {
			best, bestScore = reply, score
		}
	}
	b.scorers.End()

	if best == nil {
		return fallbackReply, nil
	}
	return best.ToText()
}

func (b *Brain) generateReply(pivots *pivotSet, tokens []string, inputIDs []int64) (*Reply, error) {
	pivot := pivots.choose(b.rng)

	node, ok, err := b.graph.GetRandomNodeWithToken(pivot)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	nextEdges, err := b.graph.Walk(node, b.endContextID, store.Forward)
	if err != nil {
		return nil, err
	}
	prevEdges, err := b.graph.Walk(node, b.endContextID, store.Backward)
	if err != nil {
		return nil, err
	}
	if len(nextEdges)+len(prevEdges) == 0 {
		return nil, nil
	}

	edges := make([]store.Edge, 0, len(prevEdges)+len(nextEdges))
	for i := len(prevEdges) - 1; i >= 0; i-- {
		edges = append(edges, prevEdges[i])
	}
	edges = append(edges, nextEdges...)

	return &Reply{
		graph:      b.graph,
		Tokens:     tokens,
		TokenIDs:   inputIDs,
		PivotNode:  node,
		Edges:      edges,
		endTokenID: b.endTokenID,
	}, nil
}

// pivotSet builds the candidate pivots for a reply: known word tokens
// from the input (all known tokens when no words matched), with
// stem-equivalent tokens conflated into groups.
func (b *Brain) pivotSet(tokens []string, inputIDs []int64) (*pivotSet, error) {
	known := make([]int64, 0, len(inputIDs))
	dedupe := make(map[int64]struct{}, len(inputIDs))
	for _, id := range inputIDs {
		if id <= 0 {
			continue
		}
		if _, ok := dedupe[id]; ok {
			continue
		}
		dedupe[id] = struct{}{}
		known = append(known, id)
	}

	ids, err := b.graph.FilterWordTokenIDs(known)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids, err = b.graph.FilterKnownTokenIDs(known)
		if err != nil {
			return nil, err
		}
	}

	ps := newPivotSet()
	for _, id := range ids {
		ps.addSingle(id)
	}

	if b.stemmer != nil {
		for _, t := range tokens {
			st := b.stemmer.Stem(t)
			if st == "" {
				continue
			}
			stemIDs, err := b.graph.TokenIDsForStem(st)
			if err != nil {
				return nil, err
			}
			if len(stemIDs) > 0 {
				ps.addGroup(stemIDs)
			}
		}
	}

	return ps, nil
}

// babble seeds the pivot set with a few random tokens when nothing in
// the input matched the vocabulary.
func (b *Brain) babble(ps *pivotSet) error {
	for i := 0; i < 5; i++ {
		id, ok, err := b.graph.GetRandomToken()
		if err != nil {
			return err
		}
		if ok {
			ps.addSingle(id)
		}
	}
	return nil
}
