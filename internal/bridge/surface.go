package bridge

// Surface is the rendering collaborator the bridge drives. It only accepts
// strings: scripts to evaluate and URLs to load going in, raw messages
// coming out through the Handler installed by Intercept.
//
// LoadURL, EvaluateScript and Destroy must only be called from inside a
// function passed to Post, which runs it on the surface's designated
// execution context. Post itself is safe from any goroutine.
type Surface interface {
	Post(fn func()) error
	LoadURL(url string) error
	EvaluateScript(code string, onResult func(result string)) error
	Intercept(h Handler)
	Destroy() error
}

// Handler receives inbound traffic from a Surface. Calls are serialized by
// the surface.
type Handler interface {
	// Message delivers one raw message posted by the embedded content.
	Message(raw string)
	// PageLoaded reports network-level load completion. It does not mean
	// the shell's scripts are ready.
	PageLoaded(url string)
}

// HandlerFuncs adapts plain functions to Handler. Nil fields are ignored.
type HandlerFuncs struct {
	OnMessage    func(raw string)
	OnPageLoaded func(url string)
}

func (h HandlerFuncs) Message(raw string) {
	if h.OnMessage != nil {
		h.OnMessage(raw)
	}
}

func (h HandlerFuncs) PageLoaded(url string) {
	if h.OnPageLoaded != nil {
		h.OnPageLoaded(url)
	}
}
