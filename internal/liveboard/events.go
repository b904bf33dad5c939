package liveboard

import "slices"

// EmbedEvent names a notification the Liveboard shell can emit.
type EmbedEvent string

const (
	EventInit                EmbedEvent = "init"
	EventAuthInit            EmbedEvent = "authInit"
	EventAuthExpire          EmbedEvent = "ThoughtspotAuthExpired"
	EventAuthFailure         EmbedEvent = "ThoughtspotAuthFailure"
	EventLoad                EmbedEvent = "load"
	EventData                EmbedEvent = "data"
	EventLiveboardRendered   EmbedEvent = "PinboardRendered"
	EventLiveboardInfo       EmbedEvent = "pinboardInfo"
	EventError               EmbedEvent = "Error"
	EventDrillDown           EmbedEvent = "drillDown"
	EventVizPointClick       EmbedEvent = "vizPointClick"
	EventVizPointDoubleClick EmbedEvent = "vizPointDoubleClick"
	EventCustomAction        EmbedEvent = "customAction"
	EventFilterChanged       EmbedEvent = "filterChanged"
	EventRouteChange         EmbedEvent = "ROUTE_CHANGE"
	EventDialogOpen          EmbedEvent = "dialog-open"
	EventDialogClose         EmbedEvent = "dialog-close"
	EventDownload            EmbedEvent = "download"
	EventSave                EmbedEvent = "save"
	EventShare               EmbedEvent = "share"
	EventPresent             EmbedEvent = "present"
	EventNoCookieAccess      EmbedEvent = "noCookieAccess"
)

var embedEvents = map[EmbedEvent]bool{
	EventInit: true, EventAuthInit: true, EventAuthExpire: true, EventAuthFailure: true,
	EventLoad: true, EventData: true, EventLiveboardRendered: true, EventLiveboardInfo: true,
	EventError: true, EventDrillDown: true, EventVizPointClick: true, EventVizPointDoubleClick: true,
	EventCustomAction: true, EventFilterChanged: true, EventRouteChange: true,
	EventDialogOpen: true, EventDialogClose: true, EventDownload: true, EventSave: true,
	EventShare: true, EventPresent: true, EventNoCookieAccess: true,
}

func (e EmbedEvent) Valid() bool {
	return embedEvents[e]
}

func (e EmbedEvent) String() string {
	return string(e)
}

// HostEvent names a command the host can send to the Liveboard shell.
type HostEvent string

const (
	HostSearch               HostEvent = "search"
	HostReload               HostEvent = "reload"
	HostDrillDown            HostEvent = "triggerDrillDown"
	HostSetVisibleVizs       HostEvent = "SetPinboardVisibleVizs"
	HostUpdateRuntimeFilters HostEvent = "UpdateRuntimeFilters"
	HostUpdateParameters     HostEvent = "UpdateParameters"
	HostNavigate             HostEvent = "Navigate"
	HostOpenFilter           HostEvent = "openFilter"
	HostSetActiveTab         HostEvent = "SetActiveTab"
	HostGetTabs              HostEvent = "GetTabs"
	HostDownloadAsPDF        HostEvent = "downloadAsPdf"
	HostMakeACopy            HostEvent = "makeACopy"
	HostEdit                 HostEvent = "edit"
	HostSave                 HostEvent = "save"
	HostShare                HostEvent = "share"
	HostPresent              HostEvent = "present"
	HostExplore              HostEvent = "explore"
	HostPin                  HostEvent = "pin"
	HostSchedule             HostEvent = "subscription"
)

var hostEvents = map[HostEvent]bool{
	HostSearch: true, HostReload: true, HostDrillDown: true, HostSetVisibleVizs: true,
	HostUpdateRuntimeFilters: true, HostUpdateParameters: true, HostNavigate: true,
	HostOpenFilter: true, HostSetActiveTab: true, HostGetTabs: true, HostDownloadAsPDF: true,
	HostMakeACopy: true, HostEdit: true, HostSave: true, HostShare: true, HostPresent: true,
	HostExplore: true, HostPin: true, HostSchedule: true,
}

func (h HostEvent) Valid() bool {
	return hostEvents[h]
}

func (h HostEvent) String() string {
	return string(h)
}

// EmbedEvents returns the known embed events in sorted order.
func EmbedEvents() []EmbedEvent {
	out := make([]EmbedEvent, 0, len(embedEvents))
	for e := range embedEvents {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}
