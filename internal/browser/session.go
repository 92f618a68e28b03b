// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/wayfarer-cli/api/schemas"
	"github.com/xkilldash9x/wayfarer-cli/internal/config"
)

const maxRedirects = 10

// Session is a pure Go browsing session implementing schemas.Environment.
// Pages are fetched over net/http with a shared cookie jar and parsed with
// x/net/html; interactive elements are indexed per page load and addressed
// by short IDs (L1, B2, I3). One session serves one agent run at a time.
type Session struct {
	id     string
	cfg    *config.Config
	logger *zap.Logger

	client      *http.Client
	screenshots ScreenshotCapturer

	mu         sync.RWMutex
	started    bool
	currentURL *url.URL
	currentDOM *html.Node
	title      string
	elements   []schemas.InteractiveElement
	// formValues holds FILL values keyed by input selector until a form
	// submission consumes them.
	formValues map[string]string
	backStack  []*url.URL
	trajectory []*schemas.Observation

	closeOnce sync.Once
}

// SessionOption customizes a Session at construction time.
type SessionOption func(*Session)

// WithScreenshots installs a screenshot capturer; each observation then
// carries a rendered image of the current page.
func WithScreenshots(capturer ScreenshotCapturer) SessionOption {
	return func(s *Session) { s.screenshots = capturer }
}

// NewSession builds an unstarted session.
func NewSession(cfg *config.Config, logger *zap.Logger, opts ...SessionOption) *Session {
	sessionID := uuid.New().String()
	s := &Session{
		id:         sessionID,
		cfg:        cfg,
		logger:     logger.Named("browser").With(zap.String("session_id", sessionID)),
		formValues: make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Start acquires the session resources.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("session already started")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("failed to create cookie jar: %w", err)
	}
	s.client = &http.Client{
		Timeout: s.cfg.Network.NavigationTimeout,
		Jar:     jar,
		// Redirects are handled manually so every hop updates session state.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	if s.screenshots != nil {
		if err := s.screenshots.Start(ctx); err != nil {
			return fmt.Errorf("failed to start screenshot capturer: %w", err)
		}
	}
	s.started = true
	s.logger.Info("Session started.")
	return nil
}

// Close releases the session resources.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		s.logger.Info("Closing session.")
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.client != nil {
			s.client.CloseIdleConnections()
		}
		if s.screenshots != nil {
			err = s.screenshots.Close(ctx)
		}
		s.started = false
	})
	return err
}

// Reset clears all session state so the environment can serve a new task.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return fmt.Errorf("failed to reset cookie jar: %w", err)
		}
		s.client.Jar = jar
	}
	s.currentURL = nil
	s.currentDOM = nil
	s.title = ""
	s.elements = nil
	s.formValues = make(map[string]string)
	s.backStack = nil
	s.trajectory = nil
	return nil
}

// Trajectory returns every observation produced so far, in order.
func (s *Session) Trajectory() []*schemas.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*schemas.Observation, len(s.trajectory))
	copy(out, s.trajectory)
	return out
}

// Observe returns a fresh snapshot of the current page state.
func (s *Session) Observe(ctx context.Context) (*schemas.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, fmt.Errorf("session not started")
	}
	return s.snapshot(ctx, nil)
}

// ResolveSelector returns a copy of the action with its Selector populated
// from the current element index. Page-level actions carry no selector.
func (s *Session) ResolveSelector(_ context.Context, action schemas.Action) (schemas.Action, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch action.Type {
	case schemas.ActionGoto, schemas.ActionGoBack, schemas.ActionScroll, schemas.ActionScrape:
		return action, nil
	}
	for _, el := range s.elements {
		if el.ID == action.ID {
			action.Selector = el.Selector
			return action, nil
		}
	}
	return action, fmt.Errorf("no element with id %q on the current page", action.ID)
}

// Act executes one action and returns the resulting observation.
func (s *Session) Act(ctx context.Context, action schemas.Action) (*schemas.Observation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, fmt.Errorf("session not started")
	}

	var data *schemas.ScrapedData
	var err error
	switch action.Type {
	case schemas.ActionGoto:
		err = s.navigate(ctx, action.Value, true)
	case schemas.ActionGoBack:
		err = s.goBack(ctx)
	case schemas.ActionClick:
		err = s.click(ctx, action)
	case schemas.ActionFill:
		err = s.fill(action)
	case schemas.ActionScroll:
		// A paginated viewport is not modeled; scrolling is a no-op that
		// still yields a fresh observation.
	case schemas.ActionScrape:
		data, err = s.scrape()
	case schemas.ActionObserve:
	default:
		return nil, fmt.Errorf("unsupported action type %q", action.Type)
	}
	if err != nil {
		return nil, err
	}
	return s.snapshot(ctx, data)
}

// -- Navigation --

func (s *Session) navigate(ctx context.Context, target string, pushHistory bool) error {
	resolved, err := s.resolveURL(target)
	if err != nil {
		return fmt.Errorf("failed to resolve URL %q: %w", target, err)
	}
	s.logger.Info("Navigating", zap.String("url", resolved.String()))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request for %q: %w", resolved.String(), err)
	}
	s.prepareRequestHeaders(req)

	prev := s.currentURL
	if err := s.executeRequest(ctx, req); err != nil {
		return err
	}
	if pushHistory && prev != nil {
		s.backStack = append(s.backStack, prev)
	}
	return nil
}

func (s *Session) goBack(ctx context.Context) error {
	if len(s.backStack) == 0 {
		return fmt.Errorf("no previous page to go back to")
	}
	prev := s.backStack[len(s.backStack)-1]
	s.backStack = s.backStack[:len(s.backStack)-1]
	return s.navigate(ctx, prev.String(), false)
}

// executeRequest sends the HTTP request, follows redirects manually, and
// updates session state from the final response.
func (s *Session) executeRequest(ctx context.Context, req *http.Request) error {
	currentReq := req
	for i := 0; i < maxRedirects; i++ {
		s.logger.Debug("Executing request",
			zap.String("method", currentReq.Method),
			zap.String("url", currentReq.URL.String()),
		)
		resp, err := s.client.Do(currentReq)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}

		if resp.StatusCode >= 300 && resp.StatusCode < 400 {
			nextReq, err := s.handleRedirect(ctx, resp, currentReq)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("failed to handle redirect: %w", err)
			}
			currentReq = nextReq
			continue
		}
		return s.processResponse(resp)
	}
	return fmt.Errorf("maximum number of redirects (%d) exceeded", maxRedirects)
}

func (s *Session) handleRedirect(ctx context.Context, resp *http.Response, originalReq *http.Request) (*http.Request, error) {
	location := resp.Header.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("redirect response missing Location header")
	}
	nextURL, err := originalReq.URL.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redirect Location %q: %w", location, err)
	}

	method := originalReq.Method
	var body io.ReadCloser
	// 301, 302, 303 change POST to GET; 307/308 reuse the body.
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		if method != http.MethodHead {
			method = http.MethodGet
		}
	default:
		if originalReq.GetBody != nil {
			body, err = originalReq.GetBody()
			if err != nil {
				return nil, fmt.Errorf("failed to get body for redirect reuse: %w", err)
			}
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, nextURL.String(), body)
	if err != nil {
		return nil, err
	}
	s.prepareRequestHeaders(req)
	req.Header.Set("Referer", originalReq.URL.String())
	return req, nil
}

func (s *Session) processResponse(resp *http.Response) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		s.logger.Warn("Request resulted in error status code",
			zap.Int("status", resp.StatusCode),
			zap.String("url", resp.Request.URL.String()),
		)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") {
		s.logger.Debug("Response is not HTML, skipping DOM parsing.", zap.String("content_type", contentType))
		s.updateState(resp.Request.URL, nil)
		return nil
	}

	limited := io.LimitReader(resp.Body, s.cfg.Browser.MaxPageBytes)
	doc, err := htmlquery.Parse(limited)
	if err != nil {
		s.updateState(resp.Request.URL, nil)
		return fmt.Errorf("failed to parse HTML response from %q: %w", resp.Request.URL.String(), err)
	}
	s.updateState(resp.Request.URL, doc)
	return nil
}

func (s *Session) updateState(newURL *url.URL, doc *html.Node) {
	s.currentURL = newURL
	s.currentDOM = doc
	s.formValues = make(map[string]string)
	s.title = ""
	s.elements = nil
	if doc == nil {
		return
	}
	if titleNode := htmlquery.FindOne(doc, "//title"); titleNode != nil {
		s.title = strings.TrimSpace(htmlquery.InnerText(titleNode))
	}
	s.elements = indexElements(doc)
}

func (s *Session) resolveURL(target string) (*url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return nil, err
	}
	if s.currentURL != nil {
		return s.currentURL.ResolveReference(parsed), nil
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("relative URL %q with no current page", target)
	}
	return parsed, nil
}

func (s *Session) prepareRequestHeaders(req *http.Request) {
	req.Header.Set("User-Agent", s.cfg.Browser.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	for k, v := range s.cfg.Network.Headers {
		req.Header.Set(k, v)
	}
}

// -- Element interaction --

func (s *Session) findBySelector(selector string) (*html.Node, error) {
	if s.currentDOM == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	node := htmlquery.FindOne(s.currentDOM, selector)
	if node == nil {
		return nil, fmt.Errorf("element %q no longer present on the page", selector)
	}
	return node, nil
}

func (s *Session) click(ctx context.Context, action schemas.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("click action %q carries no resolved selector", action.ID)
	}
	node, err := s.findBySelector(action.Selector)
	if err != nil {
		return err
	}

	switch node.Data {
	case "a":
		href := attrValue(node, "href")
		if href == "" {
			return fmt.Errorf("link %q has no href", action.ID)
		}
		return s.navigate(ctx, href, true)
	default:
		// Buttons and submit inputs submit their enclosing form.
		form := enclosingForm(node)
		if form == nil {
			return fmt.Errorf("element %q is not inside a form", action.ID)
		}
		return s.submitForm(ctx, form, node)
	}
}

func (s *Session) fill(action schemas.Action) error {
	if action.Selector == "" {
		return fmt.Errorf("fill action %q carries no resolved selector", action.ID)
	}
	if _, err := s.findBySelector(action.Selector); err != nil {
		return err
	}
	s.formValues[action.Selector] = action.Value
	return nil
}

// submitForm serializes the enclosing form, overlaying any values recorded
// by earlier FILL actions, and performs the submission request.
func (s *Session) submitForm(ctx context.Context, form *html.Node, submitter *html.Node) error {
	values := url.Values{}
	for _, input := range htmlquery.Find(form, ".//input | .//textarea | .//select") {
		name := attrValue(input, "name")
		if name == "" {
			continue
		}
		inputType := strings.ToLower(attrValue(input, "type"))
		if inputType == "submit" || inputType == "button" || inputType == "reset" {
			continue
		}
		value := attrValue(input, "value")
		if filled, ok := s.formValues[selectorFor(input)]; ok {
			value = filled
		}
		values.Set(name, value)
	}
	if name := attrValue(submitter, "name"); name != "" {
		values.Set(name, attrValue(submitter, "value"))
	}

	target := attrValue(form, "action")
	if target == "" && s.currentURL != nil {
		target = s.currentURL.String()
	}
	resolved, err := s.resolveURL(target)
	if err != nil {
		return fmt.Errorf("failed to resolve form action %q: %w", target, err)
	}

	method := strings.ToUpper(attrValue(form, "method"))
	var req *http.Request
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, resolved.String(), strings.NewReader(values.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		resolved.RawQuery = values.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, resolved.String(), nil)
	}
	if err != nil {
		return fmt.Errorf("failed to build form submission: %w", err)
	}
	s.prepareRequestHeaders(req)

	prev := s.currentURL
	if err := s.executeRequest(ctx, req); err != nil {
		return err
	}
	if prev != nil {
		s.backStack = append(s.backStack, prev)
	}
	return nil
}

// scrape extracts the readable text of the current page.
func (s *Session) scrape() (*schemas.ScrapedData, error) {
	if s.currentDOM == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	return &schemas.ScrapedData{Content: extractText(s.currentDOM)}, nil
}

// snapshot builds an observation from the current state and records it in
// the trajectory. Caller holds the lock.
func (s *Session) snapshot(ctx context.Context, data *schemas.ScrapedData) (*schemas.Observation, error) {
	obs := &schemas.Observation{
		Title:     s.title,
		Timestamp: time.Now(),
		Space:     &schemas.ActionSpace{Elements: s.elements},
		Data:      data,
	}
	if s.currentURL != nil {
		obs.URL = s.currentURL.String()
	}
	if s.screenshots != nil && obs.URL != "" {
		shot, err := s.screenshots.Capture(ctx, obs.URL)
		if err != nil {
			s.logger.Warn("Screenshot capture failed.", zap.Error(err))
		} else {
			obs.Screenshot = shot
		}
	}
	s.trajectory = append(s.trajectory, obs)
	return obs, nil
}
