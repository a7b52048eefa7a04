package overlay

import (
	"context"
	"log"
	"sync"

	"snipping-tool/src/host"
)

// Injector owns one document per tab, shows each on its surface and starts
// selections in them.
type Injector struct {
	ctx     context.Context
	surface Surface

	mu     sync.Mutex
	docs   map[int]*Document
	active *Document
}

// NewInjector returns an injector whose documents live until ctx ends.
// A nil surface keeps them headless.
func NewInjector(ctx context.Context, surface Surface) *Injector {
	if surface == nil {
		surface = Headless{}
	}
	return &Injector{ctx: ctx, surface: surface, docs: make(map[int]*Document)}
}

// DeliversInput reports whether the surface feeds documents their input.
func (i *Injector) DeliversInput() bool { return i.surface.DeliversInput() }

// Document returns the document of tab, creating and running it on first use.
func (i *Injector) Document(tab host.Tab) *Document {
	i.mu.Lock()
	defer i.mu.Unlock()
	doc, ok := i.docs[tab.ID]
	if !ok {
		doc = NewDocument(tab)
		i.docs[tab.ID] = doc
		go doc.Run(i.ctx)
		if err := i.surface.Present(i.ctx, doc); err != nil {
			log.Printf("Injector: tab %d stays headless: %v", tab.ID, err)
		}
	}
	return doc
}

// Active returns the document most recently injected into, or nil.
func (i *Injector) Active() *Document {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.active
}

// Inject starts a selection in tab. Restricted pages are refused.
func (i *Injector) Inject(tab host.Tab, opts Options) (*Selector, error) {
	if err := host.CheckCapturable(tab); err != nil {
		return nil, err
	}
	if opts.DevicePixelRatio <= 0 {
		opts.DevicePixelRatio = tab.DevicePixelRatio
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = tab.Width
	}

	doc := i.Document(tab)
	i.mu.Lock()
	i.active = doc
	i.mu.Unlock()

	log.Printf("Injector: starting selection in tab %d (%s)", tab.ID, tab.URL)
	return Activate(i.ctx, doc, opts), nil
}

// Close stops every document.
func (i *Injector) Close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for id, doc := range i.docs {
		doc.Close()
		delete(i.docs, id)
	}
	i.active = nil
}
