package domain

// Tokens de usuario ya validados contra cada plataforma.

// TwitchToken is a user access token validated against id.twitch.tv.
// UserID is the numeric channel id as Helix reports it (string form).
type TwitchToken struct {
	Access  string
	Refresh string
	UserID  string
	Login   string
}

// StreamlabsToken also carries the socket token used to open the
// realtime event feed; it is fetched during validation.
type StreamlabsToken struct {
	Access      string
	Refresh     string
	UserID      int64
	Login       string
	SocketToken string
}
