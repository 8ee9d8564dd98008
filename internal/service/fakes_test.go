package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/karsten/pillarcat/internal/domain"
	"github.com/karsten/pillarcat/internal/events"
	"github.com/karsten/pillarcat/internal/extract"
	"github.com/karsten/pillarcat/internal/fetch"
	"github.com/karsten/pillarcat/internal/repository"
)

// In-memory fakes for the store interfaces. They keep insertion order so
// batch tests see deterministic "oldest first" behavior.

type fakeProductStore struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*domain.Product
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{byID: map[string]*domain.Product{}}
}

func (s *fakeProductStore) Create(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.byID[p.ID] = &copied
	s.order = append(s.order, p.ID)
	return nil
}

func (s *fakeProductStore) Update(_ context.Context, p *domain.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *p
	s.byID[p.ID] = &copied
	return nil
}

func (s *fakeProductStore) GetByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *fakeProductStore) GetByCode(_ context.Context, manufacturerID, code string) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		p := s.byID[id]
		if p.ManufacturerID == manufacturerID && p.Code == code {
			copied := *p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *fakeProductStore) ListUnnormalized(_ context.Context, scope repository.Scope, limit int) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Product
	for _, id := range s.order {
		p := s.byID[id]
		if p.NormalizedAt == nil && matchesScope(p, scope) {
			out = append(out, *p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeProductStore) CountUnnormalized(_ context.Context, scope repository.Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, p := range s.byID {
		if p.NormalizedAt == nil && matchesScope(p, scope) {
			count++
		}
	}
	return count, nil
}

func (s *fakeProductStore) ListWithoutEmbedding(_ context.Context, scope repository.Scope, limit int) ([]domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Product
	for _, id := range s.order {
		p := s.byID[id]
		if p.Embedding == nil && matchesScope(p, scope) {
			out = append(out, *p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeProductStore) UpdateColumns(_ context.Context, id string, values map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for key, value := range values {
		switch key {
		case "specifications":
			p.Specifications = value.(domain.StringMap)
		case "confidence":
			p.Confidence = value.(int)
		case "warnings":
			p.Warnings = value.(domain.StringArray)
		case "needs_review":
			p.NeedsReview = value.(bool)
		case "normalized_at":
			if value == nil {
				p.NormalizedAt = nil
			} else {
				p.NormalizedAt = value.(*time.Time)
			}
		case "embedding":
			p.Embedding = value.(domain.Vector)
		case "description":
			p.Description = value.(string)
		default:
			return fmt.Errorf("fake does not understand column %q", key)
		}
	}
	return nil
}

func matchesScope(p *domain.Product, scope repository.Scope) bool {
	if scope.ManufacturerID != "" && p.ManufacturerID != scope.ManufacturerID {
		return false
	}
	if scope.OrganizationID != "" && p.OrganizationID != scope.OrganizationID {
		return false
	}
	return true
}

type fakeFileStore struct {
	mu    sync.Mutex
	order []string
	byID  map[string]*domain.ProductFile

	products *fakeProductStore
}

func newFakeFileStore(products *fakeProductStore) *fakeFileStore {
	return &fakeFileStore{byID: map[string]*domain.ProductFile{}, products: products}
}

func (s *fakeFileStore) Create(_ context.Context, f *domain.ProductFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *f
	s.byID[f.ID] = &copied
	s.order = append(s.order, f.ID)
	return nil
}

func (s *fakeFileStore) Update(_ context.Context, f *domain.ProductFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[f.ID]; !ok {
		return gorm.ErrRecordNotFound
	}
	copied := *f
	s.byID[f.ID] = &copied
	return nil
}

func (s *fakeFileStore) DeleteAutoAttached(_ context.Context, productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []string
	for _, id := range s.order {
		f := s.byID[id]
		if f.ProductID == productID && f.AutoAttached {
			delete(s.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return nil
}

func (s *fakeFileStore) ListUnparsedPDFs(_ context.Context, scope repository.Scope, limit int) ([]domain.ProductFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProductFile
	for _, id := range s.order {
		f := s.byID[id]
		if s.isUnparsedPDF(f, scope) {
			out = append(out, *f)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (s *fakeFileStore) CountUnparsedPDFs(_ context.Context, scope repository.Scope) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, f := range s.byID {
		if s.isUnparsedPDF(f, scope) {
			count++
		}
	}
	return count, nil
}

func (s *fakeFileStore) isUnparsedPDF(f *domain.ProductFile, scope repository.Scope) bool {
	if f.SourceURL == "" || f.ContentType != "application/pdf" || f.ParsedContent != nil {
		return false
	}
	if scope.ManufacturerID == "" && scope.OrganizationID == "" {
		return true
	}
	if s.products == nil {
		return true
	}
	p, ok := s.products.byID[f.ProductID]
	if !ok {
		return false
	}
	return matchesScope(p, scope)
}

func (s *fakeFileStore) filesFor(productID string) []*domain.ProductFile {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.ProductFile
	for _, id := range s.order {
		if s.byID[id].ProductID == productID {
			out = append(out, s.byID[id])
		}
	}
	return out
}

type fakeManufacturerStore struct {
	mu   sync.Mutex
	byID map[string]*domain.Manufacturer

	lastScraped map[string]time.Time
}

func newFakeManufacturerStore(mfrs ...*domain.Manufacturer) *fakeManufacturerStore {
	s := &fakeManufacturerStore{
		byID:        map[string]*domain.Manufacturer{},
		lastScraped: map[string]time.Time{},
	}
	for _, m := range mfrs {
		s.byID[m.ID] = m
	}
	return s
}

func (s *fakeManufacturerStore) GetByID(_ context.Context, id string) (*domain.Manufacturer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return m, nil
}

func (s *fakeManufacturerStore) TouchLastScraped(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastScraped[id] = at
	return nil
}

type fakeSchemaStore struct {
	byPillar map[string]*domain.PillarSchema
}

func (s *fakeSchemaStore) GetByPillar(_ context.Context, pillar string) (*domain.PillarSchema, error) {
	schema, ok := s.byPillar[pillar]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return schema, nil
}

type fakeJobStore struct {
	mu          sync.Mutex
	byID        map[string]*domain.ScrapeJob
	progressLog []domain.JobProgress
}

func newFakeJobStore(jobs ...*domain.ScrapeJob) *fakeJobStore {
	s := &fakeJobStore{byID: map[string]*domain.ScrapeJob{}}
	for _, j := range jobs {
		s.byID[j.ID] = j
	}
	return s
}

func (s *fakeJobStore) GetByID(_ context.Context, id string) (*domain.ScrapeJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return j, nil
}

func (s *fakeJobStore) MarkRunning(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.byID[id]; ok && !j.Status.Terminal() {
		j.Status = domain.JobStatusRunning
	}
	return nil
}

func (s *fakeJobStore) UpdateProgress(_ context.Context, id string, progress domain.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.byID[id]; ok {
		j.Progress = progress
		s.progressLog = append(s.progressLog, progress)
	}
	return nil
}

func (s *fakeJobStore) Complete(_ context.Context, id string, created, updated int, progress domain.JobProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.byID[id]; ok && !j.Status.Terminal() {
		j.Status = domain.JobStatusCompleted
		j.Created = created
		j.Updated = updated
		j.Progress = progress
	}
	return nil
}

func (s *fakeJobStore) Fail(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.byID[id]; ok && !j.Status.Terminal() {
		j.Status = domain.JobStatusFailed
		j.ErrorLog = message
	}
	return nil
}

func (s *fakeJobStore) AppendError(_ context.Context, id string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.byID[id]; ok {
		if j.ErrorLog != "" {
			j.ErrorLog += "\n"
		}
		j.ErrorLog += message
	}
	return nil
}

type fakeChunkStore struct {
	mu     sync.Mutex
	chunks []domain.Chunk
}

func (s *fakeChunkStore) NextGeneration(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	max := 0
	for _, c := range s.chunks {
		if c.DocumentID == documentID && c.Generation > max {
			max = c.Generation
		}
	}
	return max + 1, nil
}

func (s *fakeChunkStore) CreateBatch(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunks...)
	return nil
}

type emittedEvent struct {
	Name    string
	Payload events.Payload
}

type fakeEmitter struct {
	mu     sync.Mutex
	events []emittedEvent
}

func (e *fakeEmitter) Emit(_ context.Context, name string, payload events.Payload) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, emittedEvent{Name: name, Payload: payload})
	return nil
}

func (e *fakeEmitter) named(name string) []emittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []emittedEvent
	for _, ev := range e.events {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (e *fakeEmitter) drain() []emittedEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.events
	e.events = nil
	return out
}

type fakeExtractor struct {
	extractProduct func(ctx context.Context, html, pageURL, manufacturerName string) (*extract.StructuredProduct, error)
	extractFields  func(ctx context.Context, rawText string, schema *domain.PillarSchema) (*extract.FieldResult, error)
	identifyLinks  func(ctx context.Context, html, baseURL string) (*extract.LinkResult, error)
}

func (f *fakeExtractor) ExtractProduct(ctx context.Context, html, pageURL, manufacturerName string) (*extract.StructuredProduct, error) {
	return f.extractProduct(ctx, html, pageURL, manufacturerName)
}

func (f *fakeExtractor) ExtractFields(ctx context.Context, rawText string, schema *domain.PillarSchema) (*extract.FieldResult, error) {
	return f.extractFields(ctx, rawText, schema)
}

func (f *fakeExtractor) IdentifyLinks(ctx context.Context, html, baseURL string) (*extract.LinkResult, error) {
	return f.identifyLinks(ctx, html, baseURL)
}

// fakeFetcher serves canned pages by URL. Missing URLs yield nil HTML from
// FetchBatch and an error from FetchPage.
type fakeFetcher struct {
	pages map[string]string
}

func (f *fakeFetcher) FetchBatch(_ context.Context, urls []string) ([]fetch.Result, error) {
	results := make([]fetch.Result, len(urls))
	for i, u := range urls {
		results[i] = fetch.Result{URL: u}
		if page, ok := f.pages[u]; ok {
			html := page
			results[i].HTML = &html
		}
	}
	return results, nil
}

func (f *fakeFetcher) FetchPage(_ context.Context, url string) (string, error) {
	page, ok := f.pages[url]
	if !ok {
		return "", fmt.Errorf("page not retrievable: %s", url)
	}
	return page, nil
}

type fakeEmbedder struct {
	embed func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.embed(ctx, text)
}

type fakeDownloader struct {
	files map[string][]byte
}

func (f *fakeDownloader) Download(_ context.Context, url string) ([]byte, error) {
	data, ok := f.files[url]
	if !ok {
		return nil, fmt.Errorf("failed to download %s: HTTP 404", url)
	}
	return data, nil
}

type fakeVectorStore struct {
	mu      sync.Mutex
	upserts map[string][]float32
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{upserts: map[string][]float32{}}
}

func (s *fakeVectorStore) Upsert(_ context.Context, pointID string, vector []float32, _ *repository.ProductPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts[pointID] = vector
	return nil
}
