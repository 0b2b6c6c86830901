package github

import (
	"context"

	gogithub "github.com/google/go-github/v60/github"

	"github.com/mchan/issuelens/internal/retry"
)

// LatestRelease looks up the repository's latest published release. A
// repository with no releases (404) is not an error: the second return value
// is false and the caller decides what "absent" means. Transient failures are
// retried like any other request.
func (l *Lister) LatestRelease(ctx context.Context) (Release, bool, error) {
	rel, err := retry.DoValue(ctx, l.logger, "github.latest-release", l.retryCfg, func() (*gogithub.RepositoryRelease, error) {
		rel, resp, err := l.client.Repositories.GetLatestRelease(ctx, l.owner, l.repo)
		if err != nil {
			return nil, classifyError(resp, err)
		}
		return rel, nil
	})
	if err != nil {
		if IsNotFound(err) {
			return Release{}, false, nil
		}
		return Release{}, false, err
	}

	out := Release{
		TagName: rel.GetTagName(),
		Name:    rel.GetName(),
		URL:     rel.GetHTMLURL(),
	}
	if rel.PublishedAt != nil {
		out.PublishedAt = rel.PublishedAt.Time
	}
	return out, true, nil
}
