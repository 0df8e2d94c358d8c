package analytics

import (
	"context"

	"go.uber.org/zap"
)

// Client is the forwardable call surface of a ready pipeline. The Proxy
// records these calls while the pipeline is still initialising and forwards
// them once bound.
type Client interface {
	Track(event string, properties Properties)
	Identify(userID string, traits Traits)
	Group(groupID string, traits Traits)
	Screen(name string, properties Properties)
	Page(name string, properties Properties)
	Alias(newUserID string)
	Flush()
}

// coreClient is the lifecycle-resolved pipeline: enrichment feeding the
// dispatcher. While the controller is Disabled every call is dropped
// silently.
type coreClient struct {
	enricher   *Enricher
	dispatcher *Dispatcher
	lifecycle  *LifecycleController
	logger     *zap.Logger
}

func (c *coreClient) Track(event string, properties Properties) {
	c.submit(Call{Kind: EventTypeTrack, Event: event, Properties: properties})
}

func (c *coreClient) Identify(userID string, traits Traits) {
	c.submit(Call{Kind: EventTypeIdentify, UserID: userID, Traits: traits})
}

func (c *coreClient) Group(groupID string, traits Traits) {
	c.submit(Call{Kind: EventTypeGroup, GroupID: groupID, Traits: traits})
}

func (c *coreClient) Screen(name string, properties Properties) {
	c.submit(Call{Kind: EventTypeScreen, Name: name, Properties: properties})
}

func (c *coreClient) Page(name string, properties Properties) {
	c.submit(Call{Kind: EventTypePage, Name: name, Properties: properties})
}

func (c *coreClient) Alias(newUserID string) {
	c.submit(Call{Kind: EventTypeAlias, NewUserID: newUserID})
}

func (c *coreClient) Flush() {
	if c.lifecycle.State() == StateDisabled {
		return
	}
	c.dispatcher.Flush()
}

func (c *coreClient) submit(call Call) {
	if c.lifecycle.State() == StateDisabled {
		c.logger.Debug("Client disabled, dropping call", zap.String("kind", string(call.Kind)))
		return
	}

	ev, err := c.enricher.Enrich(context.Background(), call)
	if err != nil {
		c.logger.Error("Failed to enrich event, dropping call",
			zap.String("kind", string(call.Kind)), zap.Error(err))
		return
	}
	c.dispatcher.Offer(ev)
}

var _ Client = (*coreClient)(nil)
