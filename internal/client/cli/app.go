package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/dmitrijs2005/docsync/internal/client/client"
	"github.com/dmitrijs2005/docsync/internal/client/config"
	"github.com/dmitrijs2005/docsync/internal/client/media"
	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/client/services"
	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// Uploader stores a media file and describes it.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (models.Media, error)
}

// Options customize the command tree. Zero values use the process streams
// and the real store.
type Options struct {
	In  io.Reader
	Out io.Writer
	Err io.Writer

	NewDocuments func(cfg *config.Config, logger logging.Logger) (services.DocumentService, error)
	NewUploader  func(ctx context.Context, cfg *config.Config, logger logging.Logger) (Uploader, error)
}

type App struct {
	opts   Options
	cfg    *config.Config
	logger logging.Logger
	reader *bufio.Reader
	out    io.Writer
	errOut io.Writer

	docs     services.DocumentService
	uploader Uploader
	cred     *client.Credential

	registry *prometheus.Registry
}

func newApp(opts Options) *App {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.Err == nil {
		opts.Err = os.Stderr
	}
	if opts.NewDocuments == nil {
		opts.NewDocuments = defaultDocuments
	}
	if opts.NewUploader == nil {
		opts.NewUploader = defaultUploader
	}
	return &App{
		opts:   opts,
		logger: logging.Nop(),
		reader: bufio.NewReader(opts.In),
		out:    opts.Out,
		errOut: opts.Err,
	}
}

func (a *App) setConfig(cfg *config.Config) {
	a.cfg = cfg
	a.logger = logging.New(a.errOut, cfg.LogFormat, cfg.LogLevel)
}

// documents returns the controller, building it on first use.
func (a *App) documents() (services.DocumentService, error) {
	if a.docs != nil {
		return a.docs, nil
	}
	if err := a.cfg.Validate(); err != nil {
		return nil, err
	}
	docs, err := a.opts.NewDocuments(a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.docs = docs
	return docs, nil
}

func (a *App) media(ctx context.Context) (Uploader, error) {
	if a.uploader != nil {
		return a.uploader, nil
	}
	u, err := a.opts.NewUploader(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.uploader = u
	return u, nil
}

// credential returns the configured token, prompting for it when stdin is
// a terminal.
func (a *App) credential() (client.Credential, error) {
	if a.cred != nil {
		return *a.cred, nil
	}
	token := a.cfg.Token
	if token == "" {
		if !stdinIsTerminal() {
			return client.Credential{}, &common.PermissionError{Op: "auth",
				Err: errors.New("no access token, set " + config.EnvPrefix + "_TOKEN")}
		}
		t, err := GetToken(a.errOut)
		if err != nil {
			return client.Credential{}, fmt.Errorf("read token: %w", err)
		}
		token = t
	}
	cred := client.ParseCredential(token)
	a.cred = &cred
	return cred, nil
}

func defaultDocuments(cfg *config.Config, logger logging.Logger) (services.DocumentService, error) {
	c, err := client.NewHTTPClient(client.Config{
		BaseURL:           cfg.APIURL,
		Owner:             cfg.Owner,
		Repo:              cfg.Repo,
		Branch:            cfg.Branch,
		Path:              cfg.Path,
		InlineLimit:       int(cfg.InlineLimit),
		CommitMessage:     cfg.CommitMessage,
		VerifyBlobHash:    cfg.VerifyBlobHash,
		Timeout:           cfg.RequestTimeout,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Logger:            logger,
	})
	if err != nil {
		return nil, err
	}
	return services.NewDocumentService(c, services.Options{
		MaxRetries:       cfg.MaxRetries,
		Backoff:          services.Backoff{Base: cfg.BackoffBase, Cap: cfg.BackoffCap},
		VerifyAfterWrite: cfg.VerifyAfterWrite,
		Logger:           logger,
	}), nil
}

func defaultUploader(ctx context.Context, cfg *config.Config, logger logging.Logger) (Uploader, error) {
	return media.NewUploader(ctx, media.Config{
		Region:    cfg.S3.Region,
		Endpoint:  cfg.S3.Endpoint,
		Bucket:    cfg.S3.Bucket,
		AccessKey: cfg.S3.AccessKey,
		SecretKey: cfg.S3.SecretKey,
		Prefix:    cfg.S3.Prefix,
		PublicURL: cfg.S3.PublicURL,
		Logger:    logger,
	})
}

// enableStats registers the client collectors so printStats can report
// them when the command ends.
func (a *App) enableStats() {
	if a.registry != nil {
		return
	}
	a.registry = prometheus.NewRegistry()
	metrics.RegisterClientCollectors(a.registry)
}

func (a *App) printStats() {
	if a.registry == nil {
		return
	}
	families, err := a.registry.Gather()
	if err != nil {
		a.logger.Warn(context.Background(), "gather metrics", "error", err)
		return
	}
	var lines []string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			value := m.GetCounter().GetValue()
			if h := m.GetHistogram(); h != nil {
				value = h.GetSampleSum()
			}
			lines = append(lines, fmt.Sprintf("%s{%s} %g", mf.GetName(), strings.Join(labels, ","), value))
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		fmt.Fprintln(a.errOut, l)
	}
}
