package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"scriptroom/api/internal/assist"
	"scriptroom/api/internal/auth"
	"scriptroom/api/internal/config"
	"scriptroom/api/internal/document"
	"scriptroom/api/internal/engine"
	"scriptroom/api/internal/export"
	"scriptroom/api/internal/search"
)

type Session struct {
	Token     string
	OwnerID   string
	Name      string
	JTI       string
	ExpiresAt time.Time
}

type projectStore interface {
	engine.Remote
	Ping(ctx context.Context) error
}

type projectIndex interface {
	IndexProject(ownerID string, p document.Project)
	DeleteProject(ownerID, projectID string)
	Search(q search.Query) search.Response
}

type exporter interface {
	Export(ctx context.Context, ownerID string, project document.Project, format export.Format) (*export.Result, error)
}

type generator interface {
	Generate(ctx context.Context, req assist.Request) (assist.Result, error)
}

// workspace is one owner's engine. ready is closed once the initial load
// has finished. A retiring workspace stays registered until its engine has
// flushed and closed, then done is closed.
type workspace struct {
	engine   *engine.Engine
	ready    chan struct{}
	done     chan struct{}
	retiring bool
}

type Service struct {
	cfg        config.Config
	store      projectStore
	remote     engine.Remote
	cache      engine.Cache
	index      projectIndex
	exporter   exporter
	assist     generator
	engineOpts engine.Options

	mu         sync.Mutex
	workspaces map[string]*workspace
	revoked    map[string]time.Time
}

func New(cfg config.Config, projects projectStore, cache engine.Cache, index projectIndex, exporter exporter, assistant generator) *Service {
	return &Service{
		cfg:      cfg,
		store:    projects,
		remote:   indexedRemote{Remote: projects, index: index},
		cache:    cache,
		index:    index,
		exporter: exporter,
		assist:   assistant,
		engineOpts: engine.Options{
			CommitDelay:   cfg.CommitDelay,
			RemoteTimeout: cfg.RemoteTimeout,
		},
		workspaces: make(map[string]*workspace),
		revoked:    make(map[string]time.Time),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Login issues an owner token and opens the owner's workspace so its
// collection is loaded before the first edit arrives.
func (s *Service) Login(ctx context.Context, ownerID, name string) (Session, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return Session{}, validationError("ownerId is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = ownerID
	}

	token, claims, err := auth.IssueOwnerToken([]byte(s.cfg.JWTSecret), ownerID, name, s.cfg.AccessTTL)
	if err != nil {
		return Session{}, err
	}
	if _, err := s.engineFor(ctx, ownerID); err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		OwnerID:   claims.Sub,
		Name:      claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	_, revoked := s.revoked[claims.JTI]
	s.mu.Unlock()
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		OwnerID:   claims.Sub,
		Name:      claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Logout revokes the token and closes the owner's workspace. A pending
// commit is sent before the engine closes, and the owner gets no new engine
// until that has finished.
func (s *Service) Logout(_ context.Context, session Session) {
	s.mu.Lock()
	now := time.Now()
	for jti, expires := range s.revoked {
		if now.After(expires) {
			delete(s.revoked, jti)
		}
	}
	if session.JTI != "" {
		s.revoked[session.JTI] = session.ExpiresAt
	}
	ws := s.workspaces[session.OwnerID]
	if ws != nil && ws.retiring {
		ws = nil
	}
	if ws != nil {
		ws.retiring = true
	}
	s.mu.Unlock()

	if ws != nil {
		s.retire(session.OwnerID, ws)
	}
}

// retire flushes and closes ws, then unregisters it.
func (s *Service) retire(ownerID string, ws *workspace) {
	<-ws.ready
	ws.engine.Flush()
	ws.engine.Close()

	s.mu.Lock()
	if s.workspaces[ownerID] == ws {
		delete(s.workspaces, ownerID)
	}
	s.mu.Unlock()
	close(ws.done)
}

// engineFor returns the owner's engine, creating and loading it on first use.
// Concurrent callers for the same owner share one load. While the owner's
// previous workspace is retiring, callers wait for it to finish closing.
func (s *Service) engineFor(ctx context.Context, ownerID string) (*engine.Engine, error) {
	for {
		s.mu.Lock()
		ws, ok := s.workspaces[ownerID]
		if ok && ws.retiring {
			s.mu.Unlock()
			select {
			case <-ws.done:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if !ok {
			ws = &workspace{
				engine: engine.New(ownerID, s.remote, s.cache, s.engineOpts),
				ready:  make(chan struct{}),
				done:   make(chan struct{}),
			}
			s.workspaces[ownerID] = ws
		}
		s.mu.Unlock()

		if !ok {
			ws.engine.Load(context.WithoutCancel(ctx))
			close(ws.ready)
		}

		select {
		case <-ws.ready:
			return ws.engine, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *Service) sessionEngine(ctx context.Context, session Session) (*engine.Engine, error) {
	eng, err := s.engineFor(ctx, session.OwnerID)
	if err != nil {
		return nil, err
	}
	if eng.Phase() != engine.PhaseReady {
		return nil, errNotReady
	}
	return eng, nil
}

func (s *Service) activeEngine(ctx context.Context, session Session) (*engine.Engine, error) {
	eng, err := s.sessionEngine(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, ok := eng.Active(); !ok {
		return nil, errNoActiveProject
	}
	return eng, nil
}

func (s *Service) Workspace(ctx context.Context, session Session) (engine.Snapshot, error) {
	eng, err := s.engineFor(ctx, session.OwnerID)
	if err != nil {
		return engine.Snapshot{}, err
	}
	return eng.Snapshot(), nil
}

func (s *Service) CreateProject(ctx context.Context, session Session, title string) (document.Project, error) {
	eng, err := s.sessionEngine(ctx, session)
	if err != nil {
		return document.Project{}, err
	}
	project, ok := eng.CreateProject(title)
	if !ok {
		return document.Project{}, errNotReady
	}
	return project, nil
}

func (s *Service) SelectProject(ctx context.Context, session Session, projectID string) (document.Project, error) {
	eng, err := s.sessionEngine(ctx, session)
	if err != nil {
		return document.Project{}, err
	}
	if !eng.SelectProject(projectID) {
		return document.Project{}, errProjectNotFound
	}
	project, _ := eng.Active()
	return project, nil
}

// DeleteProject removes a project. confirmed carries the caller's explicit
// confirmation; without it nothing is deleted.
func (s *Service) DeleteProject(ctx context.Context, session Session, projectID string, confirmed bool) (engine.Snapshot, error) {
	if !confirmed {
		return engine.Snapshot{}, errConfirmDelete
	}
	eng, err := s.sessionEngine(ctx, session)
	if err != nil {
		return engine.Snapshot{}, err
	}
	if !eng.DeleteProject(projectID) {
		return engine.Snapshot{}, errProjectNotFound
	}
	return eng.Snapshot(), nil
}

func (s *Service) UpdateMetadata(ctx context.Context, session Session, field, value string) (document.Project, bool, error) {
	eng, err := s.activeEngine(ctx, session)
	if err != nil {
		return document.Project{}, false, err
	}
	project, changed := eng.UpdateMetadataField(document.MetadataField(field), value)
	return project, changed, nil
}

type BlockEdit struct {
	Content *string `json:"content"`
	Type    *string `json:"type"`
}

// EditBlock applies a type change and then a content change to one block.
// Either may be omitted. Unknown blocks are reported as unchanged.
func (s *Service) EditBlock(ctx context.Context, session Session, blockID string, edit BlockEdit) (document.Project, bool, error) {
	if edit.Content == nil && edit.Type == nil {
		return document.Project{}, false, validationError("content or type is required")
	}
	eng, err := s.activeEngine(ctx, session)
	if err != nil {
		return document.Project{}, false, err
	}

	changed := false
	project, _ := eng.Active()
	if edit.Type != nil {
		var ok bool
		project, ok = eng.ChangeBlockType(blockID, document.BlockType(*edit.Type))
		changed = changed || ok
	}
	if edit.Content != nil {
		var ok bool
		project, ok = eng.UpdateBlockContent(blockID, *edit.Content)
		changed = changed || ok
	}
	return project, changed, nil
}

func (s *Service) InsertBlockAfter(ctx context.Context, session Session, afterID string) (document.Block, bool, error) {
	eng, err := s.activeEngine(ctx, session)
	if err != nil {
		return document.Block{}, false, err
	}
	block, changed := eng.InsertBlockAfter(afterID)
	return block, changed, nil
}

func (s *Service) RemoveBlock(ctx context.Context, session Session, blockID string) (document.Project, bool, error) {
	eng, err := s.activeEngine(ctx, session)
	if err != nil {
		return document.Project{}, false, err
	}
	project, changed := eng.RemoveBlock(blockID)
	return project, changed, nil
}

func (s *Service) RetrySave(ctx context.Context, session Session) (bool, error) {
	eng, err := s.sessionEngine(ctx, session)
	if err != nil {
		return false, err
	}
	return eng.Retry(), nil
}

type AssistInput struct {
	assist.Request
	AfterID string `json:"afterId"`
}

type AssistOutcome struct {
	Disabled bool            `json:"disabled"`
	Text     string          `json:"text,omitempty"`
	Block    *document.Block `json:"block,omitempty"`
}

// Assist asks the generation service for text and inserts it as a new action
// block after AfterID (or at the end). Service errors are returned as is.
func (s *Service) Assist(ctx context.Context, session Session, input AssistInput) (AssistOutcome, error) {
	eng, err := s.activeEngine(ctx, session)
	if err != nil {
		return AssistOutcome{}, err
	}
	result, err := s.assist.Generate(ctx, input.Request)
	if err != nil {
		return AssistOutcome{}, err
	}
	if result.Disabled {
		return AssistOutcome{Disabled: true}, nil
	}

	outcome := AssistOutcome{Text: result.Text}
	if strings.TrimSpace(result.Text) == "" {
		return outcome, nil
	}
	block, ok := eng.InsertGenerated(input.AfterID, result.Text)
	if ok {
		outcome.Block = &block
	}
	return outcome, nil
}

func (s *Service) Search(_ context.Context, session Session, text string, limit, offset int) search.Response {
	return s.index.Search(search.Query{
		OwnerID: session.OwnerID,
		Text:    strings.TrimSpace(text),
		Limit:   limit,
		Offset:  offset,
	})
}

func (s *Service) Export(ctx context.Context, session Session, projectID string, format export.Format) (*export.Result, error) {
	eng, err := s.sessionEngine(ctx, session)
	if err != nil {
		return nil, err
	}
	project, ok := eng.Project(projectID)
	if !ok {
		return nil, errProjectNotFound
	}
	return s.exporter.Export(ctx, session.OwnerID, project, format)
}

func (s *Service) Subscribe(ctx context.Context, session Session) (<-chan engine.Event, func(), error) {
	eng, err := s.engineFor(ctx, session.OwnerID)
	if err != nil {
		return nil, nil, err
	}
	events, stop := eng.Subscribe()
	return events, stop, nil
}

// Shutdown flushes pending commits and closes every open workspace,
// including ones already retiring.
func (s *Service) Shutdown() {
	s.mu.Lock()
	retiring := make(map[string]*workspace, len(s.workspaces))
	var waiting []*workspace
	for ownerID, ws := range s.workspaces {
		if ws.retiring {
			waiting = append(waiting, ws)
			continue
		}
		ws.retiring = true
		retiring[ownerID] = ws
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for ownerID, ws := range retiring {
		wg.Add(1)
		go func(ownerID string, ws *workspace) {
			defer wg.Done()
			s.retire(ownerID, ws)
		}(ownerID, ws)
	}
	wg.Wait()
	for _, ws := range waiting {
		<-ws.done
	}
}
