// Package pipeline runs normalization, detection, cleaning, segmentation and enrichment
// for one document at a time.
package pipeline

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/cpretzinger/idudesRAG/internal/chunker"
	"github.com/cpretzinger/idudesRAG/internal/clean"
	"github.com/cpretzinger/idudesRAG/internal/detect"
	"github.com/cpretzinger/idudesRAG/internal/domain"
	"github.com/cpretzinger/idudesRAG/internal/enrich"
	"github.com/cpretzinger/idudesRAG/internal/logger"
	"github.com/cpretzinger/idudesRAG/internal/normalize"
)

// Result is everything the pipeline learned about one document.
type Result struct {
	DocumentID  string                 `json:"document_id"`
	Detection   domain.DetectionResult `json:"detection"`
	Steps       []string               `json:"steps"`
	CleanedText string                 `json:"cleaned_text"`
	Chunks      []domain.Chunk         `json:"chunks"`
	Fallback    bool                   `json:"fallback"`
	TargetSize  int                    `json:"target_size"`
	Overlap     int                    `json:"overlap"`
}

type Pipeline struct {
	cfg       Config
	detector  *detect.Detector
	cleaner   *clean.Cleaner
	segmenter *chunker.Segmenter
	enricher  *enrich.Enricher
	log       logger.Logger
}

type Option func(*Pipeline)

// WithTokenCounter replaces the token counter used for chunk token counts.
func WithTokenCounter(c enrich.TokenCounter) Option {
	return func(p *Pipeline) {
		p.enricher = enrich.New(c)
	}
}

// WithLogger sets the logger handed to the cleaner. A nil logger is ignored.
func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) {
		if log != nil {
			p.log = log
		}
	}
}

// New validates cfg and builds a Pipeline. Options run before the cleaner is created.
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seg, err := chunker.New(cfg.TargetSize, cfg.Overlap)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		cfg:       cfg,
		detector:  detect.New(cfg.Weights),
		segmenter: seg,
		enricher:  enrich.New(nil),
		log:       logger.NewForTests(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.cleaner = clean.New(p.log)
	return p, nil
}

func (p *Pipeline) Config() Config { return p.cfg }

// Process turns one raw document into enriched chunks. Input problems are reported before any
// work is done; cleaning problems never fail the call and switch to the fallback path instead.
func (p *Pipeline) Process(ctx context.Context, doc domain.RawDocument) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stageErr := func(stage domain.Stage, err error) error {
		return &domain.StageError{Stage: stage, DocumentID: doc.ID, Err: err}
	}

	if len(doc.Content) > p.cfg.MaxContentBytes {
		return nil, stageErr(domain.StageValidate,
			fmt.Errorf("%w: %d bytes, limit %d", domain.ErrOversize, len(doc.Content), p.cfg.MaxContentBytes))
	}
	if normalize.IsBlank(doc.Content) {
		return nil, stageErr(domain.StageValidate, fmt.Errorf("%w: content is empty", domain.ErrInput))
	}
	text, err := normalize.Normalize(doc.Content)
	if err != nil {
		return nil, stageErr(domain.StageNormalize, err)
	}
	if n := utf8.RuneCountInString(text); n < p.cfg.MinContentLength {
		return nil, stageErr(domain.StageValidate,
			fmt.Errorf("%w: %d characters, minimum %d", domain.ErrInput, n, p.cfg.MinContentLength))
	}

	seg, cleaning, err := p.resolve(doc)
	if err != nil {
		return nil, stageErr(domain.StageSegment, err)
	}

	det := p.detector.Detect(text)
	lowConfidence := det.Confidence < cleaning.MinConfidenceScore
	log := p.log.With("document_id", doc.ID)
	if lowConfidence {
		log.Debug("Low detection confidence", "format", det.LikelyFormat, "confidence", det.Confidence)
	}

	res := &Result{
		DocumentID: doc.ID,
		Detection:  det,
		TargetSize: seg.TargetSize(),
		Overlap:    seg.Overlap(),
	}
	var pieces []chunker.Piece
	cleaned, ok := p.clean(log, text, det, cleaning)
	if ok {
		pieces = seg.Segment(cleaned.Text, det)
	}
	if len(pieces) == 0 {
		log.Warn("Adaptive cleaning failed, using minimal cleanup", "format", det.LikelyFormat)
		res.Fallback = true
		res.CleanedText = clean.Minimal(text)
		res.Steps = []string{clean.StepFallback}
		pieces = chunker.Fixed(res.CleanedText, seg.TargetSize(), seg.Overlap())
	} else {
		res.CleanedText = cleaned.Text
		res.Steps = cleaned.Steps
	}

	res.Chunks = p.enricher.Enrich(ctx, pieces, det, utf8.RuneCountInString(doc.Content), enrich.Source{
		DocumentID:    doc.ID,
		ContentType:   doc.ContentType,
		Steps:         res.Steps,
		Fallback:      res.Fallback,
		LowConfidence: lowConfidence,
	})
	log.Debug("Document processed", "format", det.LikelyFormat, "chunks", len(res.Chunks), "fallback", res.Fallback)
	return res, nil
}

// clean runs the adaptive cleaner and reports false when it panicked or left nothing.
func (p *Pipeline) clean(
	log logger.Logger,
	text string,
	det domain.DetectionResult,
	cfg domain.CleaningConfig,
) (res clean.Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("Cleaner panicked", "panic", r)
			res, ok = clean.Result{}, false
		}
	}()
	res = p.cleaner.Clean(text, det, cfg)
	return res, res.Text != ""
}

// resolve picks the segmenter and cleaning config for one document. Explicit options win over
// the content-type profile, which wins over the pipeline defaults.
func (p *Pipeline) resolve(doc domain.RawDocument) (*chunker.Segmenter, domain.CleaningConfig, error) {
	target, overlap := p.cfg.TargetSize, p.cfg.Overlap
	if prof, ok := enrich.LookupProfile(doc.ContentType); ok {
		target, overlap = prof.TargetSize, prof.Overlap
	}
	cleaning := p.cfg.Cleaning
	if o := doc.Options; o != nil {
		if o.TargetSize > 0 {
			target = o.TargetSize
		}
		if o.Overlap != nil {
			overlap = *o.Overlap
		}
		if o.Cleaning != nil {
			cleaning = *o.Cleaning
		}
	}
	if target == p.segmenter.TargetSize() && overlap == p.segmenter.Overlap() {
		return p.segmenter, cleaning, nil
	}
	seg, err := chunker.New(target, overlap)
	return seg, cleaning, err
}
