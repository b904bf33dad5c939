// Package liveboard narrows the generic bridge controller to the Liveboard
// embed and its event vocabulary.
package liveboard

import (
	"errors"
	"fmt"

	"github.com/thoughtspot/android-embed-sdk/internal/bridge"
)

// EmbedType is the tag the shell uses to pick the Liveboard renderer.
const EmbedType = "Liveboard"

var ErrUnknownEvent = errors.New("liveboard: unknown event")

// Controller handles the shell handshake and Liveboard host/embed events.
// It adds no protocol behaviour of its own.
type Controller struct {
	*bridge.Controller
	view ViewConfig
}

// New builds a Liveboard controller. The options are the bridge's.
func New(view ViewConfig, cfg bridge.EmbedConfig, opts ...bridge.Option) (*Controller, error) {
	if err := view.Validate(); err != nil {
		return nil, err
	}
	c, err := bridge.New(cfg, bridge.View{EmbedType: EmbedType, Config: view}, opts...)
	if err != nil {
		return nil, err
	}
	return &Controller{Controller: c, view: view}, nil
}

// View returns the Liveboard config the controller was built with.
func (c *Controller) View() ViewConfig {
	return c.view
}

// On registers fn for a Liveboard embed event.
func (c *Controller) On(event EmbedEvent, fn bridge.Listener) error {
	if !event.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return c.Controller.On(event.String(), fn)
}

// Off removes the listener for event.
func (c *Controller) Off(event EmbedEvent) {
	c.Controller.Off(event.String())
}

// Trigger sends a Liveboard host event into the shell.
func (c *Controller) Trigger(event HostEvent, payload any) error {
	if !event.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
	return c.Controller.Trigger(event.String(), payload)
}
