package signal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v71/github"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/shepherd/internal/errors"
	"github.com/Iron-Ham/shepherd/internal/logging"
	"github.com/Iron-Ham/shepherd/internal/stepref"
)

// GitHub listing limits.
const (
	// MaxPageSize is the largest page the issues and search endpoints serve.
	MaxPageSize = 100

	// MaxPages caps pagination of any one filtered query. Every query is
	// already scoped to a single migration, so hitting it means the filter
	// matched far more than a migration can hold.
	MaxPages = 200

	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 3

	// hydrateConcurrency bounds parallel pull request lookups.
	hydrateConcurrency = 4
)

// errIncompleteSearch is returned when GitHub search times out internally
// and serves a partial result set. It is retried like any transient failure.
var errIncompleteSearch = errors.New("search returned incomplete results")

// GitHubSource lists a migration's pull requests through the GitHub REST API.
//
// Pull requests are found three ways, each filtered server side: by any
// repository label that names the migration, by a head branch starting with
// "<id>-step-", and by the migration identifier in the title. Hits whose step
// cannot be read from their labels or title are looked up individually to
// learn their head branch. Unrelated repository history is never paged.
type GitHubSource struct {
	client     *github.Client
	owner      string
	repo       string
	maxRetries int
	newBackOff func() backoff.BackOff
	logger     *logging.Logger
}

// GitHubOption configures a GitHubSource.
type GitHubOption func(*GitHubSource)

// WithMaxRetries sets the number of retries after the first attempt.
func WithMaxRetries(n int) GitHubOption {
	return func(s *GitHubSource) { s.maxRetries = n }
}

// WithBackOff overrides the retry schedule. BackOff implementations are
// stateful, so the factory is called once per request.
func WithBackOff(f func() backoff.BackOff) GitHubOption {
	return func(s *GitHubSource) { s.newBackOff = f }
}

// WithSourceLogger sets the source's logger.
func WithSourceLogger(l *logging.Logger) GitHubOption {
	return func(s *GitHubSource) { s.logger = l }
}

// WithBaseURL points the client at a different API root (GitHub Enterprise or tests).
func WithBaseURL(raw string) GitHubOption {
	return func(s *GitHubSource) {
		if !strings.HasSuffix(raw, "/") {
			raw += "/"
		}
		if u, err := url.Parse(raw); err == nil {
			s.client.BaseURL = u
		}
	}
}

// NewGitHubSource creates a Source for owner/repo. An empty token performs
// unauthenticated requests; a nil httpClient uses http.DefaultClient.
func NewGitHubSource(httpClient *http.Client, token, owner, repo string, opts ...GitHubOption) *GitHubSource {
	client := github.NewClient(httpClient)
	if token != "" {
		client = client.WithAuthToken(token)
	}

	s := &GitHubSource{
		client:     client,
		owner:      owner,
		repo:       repo,
		maxRetries: DefaultMaxRetries,
		newBackOff: defaultBackOff,
		logger:     logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 10 * time.Second
	// Bounded by attempt count and the caller's context, not elapsed time.
	bo.MaxElapsedTime = 0
	return bo
}

// ListPullRequests returns the pull requests in the given state that may
// belong to migrationID, ordered by number. Callers still filter the result
// by step reference; the queries only narrow the candidates.
func (s *GitHubSource) ListPullRequests(ctx context.Context, migrationID string, state PRState) ([]PullRequest, error) {
	labels, err := s.migrationLabels(ctx, migrationID)
	if err != nil {
		return nil, err
	}

	found := make(map[int]PullRequest)
	for _, label := range labels {
		issues, err := s.listLabeled(ctx, label, state)
		if err != nil {
			return nil, err
		}
		for _, is := range issues {
			found[is.GetNumber()] = fromIssue(is)
		}
	}

	queries := []string{
		fmt.Sprintf("repo:%s/%s is:pr is:%s head:%s-step-", s.owner, s.repo, state, migrationID),
		fmt.Sprintf("repo:%s/%s is:pr is:%s in:title %q", s.owner, s.repo, state, "["+migrationID+"]"),
	}
	for _, q := range queries {
		issues, err := s.search(ctx, q, state)
		if err != nil {
			return nil, err
		}
		for _, is := range issues {
			if _, ok := found[is.GetNumber()]; !ok {
				found[is.GetNumber()] = fromIssue(is)
			}
		}
	}

	prs, err := s.hydrate(ctx, migrationID, found)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(prs, func(a, b PullRequest) int { return a.Number - b.Number })
	return prs, nil
}

// migrationLabels returns the repository labels that name migrationID: the
// migration label and any step labels. A label that does not exist in the
// repository cannot be on a pull request, so it is never queried.
func (s *GitHubSource) migrationLabels(ctx context.Context, migrationID string) ([]string, error) {
	opts := &github.ListOptions{PerPage: MaxPageSize}
	all, err := paginate(ctx, s, "list labels", opts, func() ([]*github.Label, *github.Response, error) {
		return s.client.Issues.ListLabels(ctx, s.owner, s.repo, opts)
	})
	if err != nil {
		return nil, err
	}

	var names []string
	for _, name := range labelNames(all) {
		if id, ok := stepref.ParseMigrationLabel(name); ok && id == migrationID {
			names = append(names, name)
		} else if ref, ok := stepref.ParseLabel(name); ok && ref.MigrationID == migrationID {
			names = append(names, name)
		}
	}
	return names, nil
}

func (s *GitHubSource) listLabeled(ctx context.Context, label string, state PRState) ([]*github.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       string(state),
		Labels:      []string{label},
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: MaxPageSize},
	}
	issues, err := paginate(ctx, s, "list "+string(state)+" pull requests labeled "+label, &opts.ListOptions,
		func() ([]*github.Issue, *github.Response, error) {
			return s.client.Issues.ListByRepo(ctx, s.owner, s.repo, opts)
		})
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(issues, func(is *github.Issue) bool { return !is.IsPullRequest() }), nil
}

func (s *GitHubSource) search(ctx context.Context, query string, state PRState) ([]*github.Issue, error) {
	opts := &github.SearchOptions{
		Sort:        "created",
		Order:       "asc",
		ListOptions: github.ListOptions{PerPage: MaxPageSize},
	}
	return paginate(ctx, s, "search "+string(state)+" pull requests", &opts.ListOptions,
		func() ([]*github.Issue, *github.Response, error) {
			res, resp, err := s.client.Search.Issues(ctx, query, opts)
			if err != nil {
				return nil, resp, err
			}
			if res.GetIncompleteResults() {
				return nil, resp, errIncompleteSearch
			}
			return res.Issues, resp, nil
		})
}

// hydrate fills in the head branch of pull requests whose step for
// migrationID cannot be read from their labels or title. Issue listings and
// search results carry no head ref.
func (s *GitHubSource) hydrate(ctx context.Context, migrationID string, found map[int]PullRequest) ([]PullRequest, error) {
	prs := make([]PullRequest, 0, len(found))
	p := pool.NewWithResults[PullRequest]().WithContext(ctx).
		WithMaxGoroutines(hydrateConcurrency).
		WithCancelOnError().
		WithFirstError()

	for _, pr := range found {
		if _, _, ok := stepref.ResolveFor(migrationID, pr.Labels, "", pr.Title); ok {
			prs = append(prs, pr)
			continue
		}
		p.Go(func(ctx context.Context) (PullRequest, error) {
			full, _, err := retry(ctx, s, fmt.Sprintf("get pull request #%d", pr.Number),
				func() (*github.PullRequest, *github.Response, error) {
					return s.client.PullRequests.Get(ctx, s.owner, s.repo, pr.Number)
				})
			if err != nil {
				return PullRequest{}, err
			}
			return fromGitHub(full), nil
		})
	}

	hydrated, err := p.Wait()
	if err != nil {
		return nil, err
	}
	return append(prs, hydrated...), nil
}

// paginate follows NextPage links until exhausted or MaxPages is reached.
// opts must be the ListOptions that fetch sends.
func paginate[T any](ctx context.Context, s *GitHubSource, operation string, opts *github.ListOptions, fetch func() ([]T, *github.Response, error)) ([]T, error) {
	var all []T
	for page := 1; ; page++ {
		if page > MaxPages {
			return nil, errors.NewTransportError(operation,
				errors.Wrapf(errors.ErrTransport, "pagination limit of %d pages exceeded", MaxPages)).
				WithRetryable(false)
		}

		items, resp, err := retry(ctx, s, operation, fetch)
		if err != nil {
			return nil, err
		}
		all = append(all, items...)

		if resp == nil || resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// retry runs call with exponential backoff. Not-found and authorization
// failures are permanent, and so is the caller canceling the context.
// Failures are always *errors.TransportError.
func retry[T any](ctx context.Context, s *GitHubSource, operation string, call func() (T, *github.Response, error)) (T, *github.Response, error) {
	var (
		result   T
		resp     *github.Response
		attempts int
	)

	op := func() error {
		attempts++
		var err error
		result, resp, err = call()
		if err == nil {
			return nil
		}

		terr := s.toTransportError(ctx, operation, err, resp)
		if !terr.IsRetryable() {
			return backoff.Permanent(terr)
		}
		s.logger.Debug("retrying github request",
			"operation", operation, "attempt", attempts, "error", err.Error())
		return terr
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), uint64(s.maxRetries)), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		var terr *errors.TransportError
		if !errors.As(err, &terr) {
			// backoff surfaces ctx.Err() when the context ends between attempts.
			terr = s.toTransportError(ctx, operation, err, nil)
		}
		var zero T
		return zero, nil, terr.WithAttempts(attempts)
	}
	return result, resp, nil
}

func (s *GitHubSource) toTransportError(ctx context.Context, operation string, err error, resp *github.Response) *errors.TransportError {
	terr := errors.NewTransportError(operation, err)

	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return terr.WithCanceled()
	}

	var rateErr *github.RateLimitError
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &rateErr) || errors.As(err, &abuseErr) {
		return terr.WithStatusCode(http.StatusForbidden).WithRateLimited()
	}

	if resp != nil && resp.Response != nil && resp.StatusCode >= http.StatusBadRequest {
		terr.WithStatusCode(resp.StatusCode)
		switch resp.StatusCode {
		case http.StatusNotFound, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
			terr.WithRetryable(false)
		}
	}
	return terr
}

func labelNames(labels []*github.Label) []string {
	names := make([]string, 0, len(labels))
	for _, l := range labels {
		names = append(names, l.GetName())
	}
	return names
}

// fromIssue converts an issue listing or search hit. HeadRef is unknown.
func fromIssue(is *github.Issue) PullRequest {
	links := is.GetPullRequestLinks()
	return PullRequest{
		Number: is.GetNumber(),
		Title:  is.GetTitle(),
		State:  is.GetState(),
		Merged: links != nil && links.MergedAt != nil,
		Labels: labelNames(is.Labels),
	}
}

func fromGitHub(pr *github.PullRequest) PullRequest {
	return PullRequest{
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		HeadRef: pr.GetHead().GetRef(),
		State:   pr.GetState(),
		Merged:  pr.GetMerged() || pr.MergedAt != nil,
		Labels:  labelNames(pr.Labels),
	}
}
