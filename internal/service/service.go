// Package service implements the careerd application operations: CV upload,
// interest capture, profile analysis and career recommendation.
package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/careerd/internal/career"
	"github.com/fyrsmithlabs/careerd/internal/docstore"
	"github.com/fyrsmithlabs/careerd/internal/metadata"
	"github.com/fyrsmithlabs/careerd/internal/pdftext"
	"github.com/fyrsmithlabs/careerd/internal/profile"
)

const instrumentationName = "github.com/fyrsmithlabs/careerd/internal/service"

// Document types written by the service.
const (
	TypeCVRaw     = "cv_raw"
	TypeProfile   = profile.TypeProfile
	TypeInterests = "interests"
)

const (
	analyzeQuery   = "profile summary"
	recommendQuery = "career recommendation"

	maxSourceNameLen = 255
)

// ErrInvalidInput marks a request the caller must fix.
var ErrInvalidInput = errors.New("invalid input")

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// InputMessage returns the caller-facing part of an ErrInvalidInput error.
func InputMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
}

// DocumentStore is the subset of docstore.Store the service writes and reads.
type DocumentStore interface {
	Upsert(ctx context.Context, userID, text string, meta metadata.Map) (string, error)
	Query(ctx context.Context, userID, queryText string, topK int) ([]docstore.Hit, error)
}

// ProfileExtractor turns CV text into a Profile.
type ProfileExtractor interface {
	Extract(ctx context.Context, text string) (profile.Profile, error)
}

// Recommender produces a career recommendation.
type Recommender interface {
	Recommend(ctx context.Context, p profile.Profile, interests []string, contextText string) (career.Recommendation, error)
}

// PDFExtractor converts an uploaded PDF to text.
type PDFExtractor interface {
	Extract(ctx context.Context, r io.Reader) (string, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Docs        DocumentStore
	Extractor   ProfileExtractor
	Recommender Recommender
	PDF         PDFExtractor
	TopK        int
	Logger      *zap.Logger
}

// Service runs the application operations.
type Service struct {
	docs        DocumentStore
	aggregator  *profile.Aggregator
	extractor   ProfileExtractor
	recommender Recommender
	pdf         PDFExtractor
	topK        int
	logger      *zap.Logger

	operations metric.Int64Counter
}

// New creates a Service.
func New(d Deps) (*Service, error) {
	if d.Docs == nil {
		return nil, errors.New("document store is required")
	}
	if d.Extractor == nil {
		return nil, errors.New("profile extractor is required")
	}
	if d.Recommender == nil {
		return nil, errors.New("recommender is required")
	}
	if d.TopK <= 0 {
		d.TopK = docstore.DefaultTopK
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}

	s := &Service{
		docs:        d.Docs,
		aggregator:  profile.NewAggregator(d.Docs),
		extractor:   d.Extractor,
		recommender: d.Recommender,
		pdf:         d.PDF,
		topK:        d.TopK,
		logger:      d.Logger,
	}

	var err error
	s.operations, err = otel.Meter(instrumentationName).Int64Counter(
		"careerd.service.operations_total",
		metric.WithDescription("Application operations by name and outcome"),
	)
	if err != nil {
		s.logger.Warn("failed to create operations counter", zap.Error(err))
	}
	return s, nil
}

func (s *Service) record(ctx context.Context, op string, err error) {
	if s.operations == nil {
		return
	}
	result := "ok"
	switch {
	case errors.Is(err, ErrInvalidInput):
		result = "invalid"
	case err != nil:
		result = "error"
	}
	s.operations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("result", result),
	))
}

// UploadRequest carries a CV as an uploaded file or as raw text.
type UploadRequest struct {
	UserID      string
	FileName    string
	ContentType string
	File        io.Reader
	Text        string
}

// UploadResult echoes the extracted profile.
type UploadResult struct {
	UserID  string          `json:"user_id"`
	Profile profile.Profile `json:"profile"`
}

// UploadCV extracts a profile from the CV and stores both the raw text and
// the structured profile for the user.
func (s *Service) UploadCV(ctx context.Context, req UploadRequest) (res UploadResult, err error) {
	defer func() { s.record(ctx, "upload_cv", err) }()

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return UploadResult{}, invalid("user_id is required")
	}
	if req.File == nil && req.Text == "" {
		return UploadResult{}, invalid("Provide either a file or text content")
	}

	content := req.Text
	if req.File != nil {
		content, err = s.readUpload(ctx, req)
		if err != nil {
			return UploadResult{}, err
		}
	}

	content = profile.CleanText(content)
	if content == "" {
		return UploadResult{}, invalid("No parsable content provided")
	}

	p, err := s.extractor.Extract(ctx, content)
	if err != nil {
		return UploadResult{}, err
	}

	rawMeta := metadata.Pairs(metadata.KeyType, TypeCVRaw)
	if name := sourceName(req.FileName); name != "" {
		rawMeta = rawMeta.Set("source", metadata.String(name))
	}
	if _, err = s.docs.Upsert(ctx, userID, content, rawMeta); err != nil {
		return UploadResult{}, fmt.Errorf("storing cv: %w", err)
	}

	profileMeta := metadata.Pairs(
		metadata.KeyType, TypeProfile,
		"summary", p.Summary,
		"skills", p.Skills,
		"experience", p.Experience,
		"education", p.Education,
	)
	if _, err = s.docs.Upsert(ctx, userID, profile.ComposeText(p), profileMeta); err != nil {
		return UploadResult{}, fmt.Errorf("storing profile: %w", err)
	}

	s.logger.Info("cv uploaded",
		zap.String("user_id", userID),
		zap.Int("chars", utf8.RuneCountInString(content)),
		zap.Int("skills", len(p.Skills)),
	)
	return UploadResult{UserID: userID, Profile: p}, nil
}

func (s *Service) readUpload(ctx context.Context, req UploadRequest) (string, error) {
	br := bufio.NewReader(req.File)
	head, _ := br.Peek(4)

	if !pdftext.IsPDF(req.ContentType, req.FileName, head) {
		data, err := io.ReadAll(br)
		if err != nil {
			return "", fmt.Errorf("reading upload: %w", err)
		}
		return strings.ToValidUTF8(string(data), ""), nil
	}

	if s.pdf == nil {
		return "", invalid("PDF uploads are not supported")
	}
	text, err := s.pdf.Extract(ctx, br)
	if err != nil {
		if errors.Is(err, pdftext.ErrInvalidPDF) {
			return "", invalid("could not read PDF: " + err.Error())
		}
		return "", fmt.Errorf("extracting pdf: %w", err)
	}
	return text, nil
}

// InterestsResult acknowledges stored interests.
type InterestsResult struct {
	Status string `json:"status"`
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// SaveInterests stores the user's interests as one retrievable document.
// Blank entries are dropped.
func (s *Service) SaveInterests(ctx context.Context, userID string, interests []string) (res InterestsResult, err error) {
	defer func() { s.record(ctx, "save_interests", err) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return InterestsResult{}, invalid("user_id is required")
	}
	kept := cleanInterests(interests)

	meta := metadata.Pairs(metadata.KeyType, TypeInterests, "interests", kept)
	if _, err = s.docs.Upsert(ctx, userID, "INTERESTS: "+strings.Join(kept, ", "), meta); err != nil {
		return InterestsResult{}, fmt.Errorf("storing interests: %w", err)
	}
	// Count reports what was submitted; blank entries are not stored.
	return InterestsResult{Status: "ok", UserID: userID, Count: len(interests)}, nil
}

// AnalyzeResult is the aggregated profile and how many documents backed it.
type AnalyzeResult struct {
	Profile       profile.Profile `json:"profile"`
	EvidenceCount int             `json:"evidence_count"`
}

// Analyze rebuilds the user's profile from stored documents.
func (s *Service) Analyze(ctx context.Context, userID string) (res AnalyzeResult, err error) {
	defer func() { s.record(ctx, "analyze", err) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return AnalyzeResult{}, invalid("user_id is required")
	}
	p, n, err := s.aggregator.Aggregate(ctx, userID, analyzeQuery, s.topK)
	if err != nil {
		return AnalyzeResult{}, fmt.Errorf("aggregating profile: %w", err)
	}
	return AnalyzeResult{Profile: p, EvidenceCount: n}, nil
}

// Recommend suggests a career using the stored profile, the given
// interests and retrieved context.
func (s *Service) Recommend(ctx context.Context, userID string, interests []string) (rec career.Recommendation, err error) {
	defer func() { s.record(ctx, "recommend", err) }()

	userID = strings.TrimSpace(userID)
	if userID == "" {
		return career.Recommendation{}, invalid("user_id is required")
	}
	interests = cleanInterests(interests)

	query := strings.TrimSpace(recommendQuery + " " + strings.Join(interests, " "))
	p, contextText, n, err := s.aggregator.Context(ctx, userID, query, s.topK)
	if err != nil {
		return career.Recommendation{}, fmt.Errorf("retrieving context: %w", err)
	}

	rec, err = s.recommender.Recommend(ctx, p, interests, contextText)
	if err != nil {
		return career.Recommendation{}, err
	}
	s.logger.Info("recommendation generated",
		zap.String("user_id", userID),
		zap.Int("evidence", n),
		zap.String("career", rec.RecommendedCareer),
	)
	return rec, nil
}

// sourceName reduces a client-supplied file name to its last path element.
// Browsers on Windows may send full paths with backslashes.
func sourceName(fileName string) string {
	name := fileName
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimSpace(strings.ToValidUTF8(name, ""))
	if name == "." || name == ".." {
		return ""
	}
	if len(name) > maxSourceNameLen {
		name = strings.ToValidUTF8(name[:maxSourceNameLen], "")
	}
	return name
}

func cleanInterests(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
