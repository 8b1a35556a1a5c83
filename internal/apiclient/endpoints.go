package apiclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"sitekit/internal/domain"
)

// Source indica de donde salio una respuesta.
type Source string

const (
	SourceRemote Source = "remote"
	SourceStore  Source = "store"
	SourceQueued Source = "queued"
)

const maxQueuedItems = 100

// pendingQueues asocia cada cola offline con el endpoint que la consume.
var pendingQueues = []struct {
	key  string
	path string
}{
	{domain.KeyPendingQuotes, "/quotes"},
	{domain.KeyPendingNewsletter, "/newsletter"},
	{domain.KeyPendingCostEstimates, "/cost-estimates"},
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	User domain.User `json:"user"`
}

// Login valida credenciales contra POST /auth/login y devuelve el usuario.
func (c *Client) Login(ctx context.Context, username, password string) (domain.User, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password}, &resp); err != nil {
		return domain.User{}, err
	}
	return resp.User, nil
}

// Projects lista proyectos; si el backend no responde usa la ultima copia guardada.
func (c *Client) Projects(ctx context.Context) ([]domain.Project, Source, error) {
	var projects []domain.Project
	src, err := c.readThrough(ctx, "/projects", domain.KeyProjects, &projects)
	return projects, src, err
}

// ClientProjects lista los proyectos de un cliente. El fallback filtra la copia
// local por ClientID o por los projectIDs del usuario.
func (c *Client) ClientProjects(ctx context.Context, user domain.User) ([]domain.Project, Source, error) {
	var projects []domain.Project
	err := c.do(ctx, http.MethodGet, "/client-projects?userId="+url.QueryEscape(user.ID), nil, &projects)
	if err == nil {
		return projects, SourceRemote, nil
	}
	if !IsUnavailable(err) || c.store == nil {
		return nil, "", err
	}
	var all []domain.Project
	ok, serr := c.store.Get(ctx, domain.KeyProjects, &all)
	if serr != nil || !ok {
		return nil, "", err
	}
	for _, p := range all {
		if p.ClientID == user.ID || user.HasProject(p.ID) {
			projects = append(projects, p)
		}
	}
	c.logger.Info("serving client projects from store", zap.String("user_id", user.ID))
	return projects, SourceStore, nil
}

// Users lista usuarios. La copia local nunca se pisa con la remota porque
// contiene los hashes usados por el login local.
func (c *Client) Users(ctx context.Context) ([]domain.User, Source, error) {
	var users []domain.User
	err := c.do(ctx, http.MethodGet, "/users", nil, &users)
	if err == nil {
		return users, SourceRemote, nil
	}
	if !IsUnavailable(err) || c.store == nil {
		return nil, "", err
	}
	ok, serr := c.store.Get(ctx, domain.KeyUsers, &users)
	if serr != nil || !ok {
		return nil, "", err
	}
	for i := range users {
		users[i] = users[i].Public()
	}
	return users, SourceStore, nil
}

func (c *Client) SubmitQuote(ctx context.Context, quote domain.QuoteRequest) (Source, error) {
	return c.writeOrQueue(ctx, "/quotes", domain.KeyPendingQuotes, quote)
}

func (c *Client) SubscribeNewsletter(ctx context.Context, signup domain.NewsletterSignup) (Source, error) {
	return c.writeOrQueue(ctx, "/newsletter", domain.KeyPendingNewsletter, signup)
}

func (c *Client) SaveCostEstimate(ctx context.Context, estimate domain.CostEstimate) (Source, error) {
	return c.writeOrQueue(ctx, "/cost-estimates", domain.KeyPendingCostEstimates, estimate)
}

// FlushPending reenvia las colas offline. Se detiene en la primera cola cuyo
// backend sigue caido; los items rechazados con 4xx se descartan.
func (c *Client) FlushPending(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}
	sent := 0
	for _, q := range pendingQueues {
		var items []json.RawMessage
		ok, err := c.store.Get(ctx, q.key, &items)
		if err != nil {
			return sent, err
		}
		if !ok || len(items) == 0 {
			continue
		}

		remaining := items[:0:0]
		var stopErr error
		for i, item := range items {
			err := c.do(ctx, http.MethodPost, q.path, item, nil)
			if err == nil {
				sent++
				continue
			}
			if IsUnavailable(err) {
				remaining = append(remaining, items[i:]...)
				stopErr = err
				break
			}
			c.logger.Warn("dropping rejected queued item", zap.String("path", q.path), zap.Error(err))
		}

		if len(remaining) == 0 {
			if err := c.store.Remove(ctx, q.key); err != nil {
				return sent, err
			}
		} else if err := c.store.Set(ctx, q.key, remaining); err != nil {
			return sent, err
		}
		if stopErr != nil {
			return sent, stopErr
		}
	}
	return sent, nil
}

func (c *Client) readThrough(ctx context.Context, path, key string, out any) (Source, error) {
	err := c.do(ctx, http.MethodGet, path, nil, out)
	if err == nil {
		if c.store != nil {
			if serr := c.store.Set(ctx, key, out); serr != nil {
				c.logger.Warn("cache remote response failed", zap.String("key", key), zap.Error(serr))
			}
		}
		return SourceRemote, nil
	}
	if !IsUnavailable(err) || c.store == nil {
		return "", err
	}
	ok, serr := c.store.Get(ctx, key, out)
	if serr != nil || !ok {
		return "", err
	}
	c.logger.Info("serving from store", zap.String("path", path), zap.String("key", key))
	return SourceStore, nil
}

func (c *Client) writeOrQueue(ctx context.Context, path, queueKey string, item any) (Source, error) {
	err := c.do(ctx, http.MethodPost, path, item, nil)
	if err == nil {
		return SourceRemote, nil
	}
	if !IsUnavailable(err) || c.store == nil {
		return "", err
	}
	if qerr := c.store.AppendCapped(ctx, queueKey, item, maxQueuedItems); qerr != nil {
		c.logger.Error("queue offline write failed", zap.String("key", queueKey), zap.Error(qerr))
		return "", err
	}
	c.logger.Info("queued offline write", zap.String("path", path), zap.String("key", queueKey))
	return SourceQueued, nil
}
