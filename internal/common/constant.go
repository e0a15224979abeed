package common

// HTTP headers and media types of the contents API dialect spoken between
// the docsync client and the store.
const (
	AuthorizationHeaderName = "Authorization"
	APIVersionHeaderName    = "X-GitHub-Api-Version"
	APIVersion              = "2022-11-28"

	MediaTypeJSON = "application/vnd.github+json"
	MediaTypeRaw  = "application/vnd.github.raw"
)

// MaxMediaItems is the largest number of media references a record may hold.
const MaxMediaItems = 4
