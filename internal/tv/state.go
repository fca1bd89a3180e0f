// Package tv provides the device controller and playback-state domain
// logic for an Android TV / Fire TV device polled over its remote shell.
package tv

// PlayState is the closed set of device states reported to callers.
type PlayState string

// Device states. StateUnknown marks output the translator could not map;
// the controller treats it the same as a failed refresh.
const (
	StateOff     PlayState = "off"
	StateIdle    PlayState = "idle"
	StateStandby PlayState = "standby"
	StatePlaying PlayState = "playing"
	StatePaused  PlayState = "paused"
	StateUnknown PlayState = "unknown"
)

// Media session playback states as reported by dumpsys media_session.
const (
	mediaSessionStatePaused  = 2
	mediaSessionStatePlaying = 3
	mediaSessionStateBuffer  = 4
)

// stateTokens maps raw device-reported state tokens to the closed enum.
// The table is total through the StateUnknown default in TranslateState.
var stateTokens = map[string]PlayState{
	"off":     StateOff,
	"idle":    StateIdle,
	"standby": StateStandby,
	"playing": StatePlaying,
	"paused":  StatePaused,
	"play":    StatePlaying,
	"pause":   StatePaused,
	"2":       StatePaused,
	"3":       StatePlaying,
}

// TranslateState maps a raw state token to a PlayState. Unrecognized
// tokens always yield StateUnknown.
func TranslateState(token string) PlayState {
	if state, ok := stateTokens[token]; ok {
		return state
	}
	return StateUnknown
}

// App packages with dedicated state detection rules. The generic
// media-session and wake-lock fallbacks misreport these apps.
const (
	appPackageLauncher = "com.amazon.tv.launcher"
	appPackageSettings = "com.amazon.tv.settings"

	appAmazonVideo = "com.amazon.avod"
	appFirefox     = "org.mozilla.tv.firefox"
	appHulu        = "com.hulu.plus"
	appJellyfin    = "org.jellyfin.androidtv"
	appNetflix     = "com.netflix.ninja"
	appSport1      = "de.sport1.firetv.video"
	appSpotify     = "com.spotify.tv.android"
	appTwitch      = "tv.twitch.android.viewer"
	appWaipu       = "de.exaring.waipu.firetv.live"
)

// DeriveState computes the device state from one refresh's properties.
func DeriveState(p Properties) PlayState {
	if !p.ScreenOn {
		return StateOff
	}
	if !p.Awake {
		return StateIdle
	}

	switch p.CurrentApp {
	case "", appPackageLauncher, appPackageSettings:
		return StateStandby

	case appAmazonVideo:
		if p.WakeLockSize == 5 {
			return StatePlaying
		}
		return StatePaused

	case appFirefox:
		if p.WakeLockSize == 3 {
			return StatePlaying
		}
		return StateStandby

	case appHulu:
		switch p.WakeLockSize {
		case 4:
			return StatePlaying
		case 2:
			return StatePaused
		}
		return StateStandby

	case appJellyfin:
		if p.WakeLockSize == 2 {
			return StatePlaying
		}
		return StatePaused

	case appNetflix, appSpotify:
		switch p.MediaSessionState {
		case mediaSessionStatePaused:
			return StatePaused
		case mediaSessionStatePlaying:
			return StatePlaying
		}
		return StateStandby

	case appSport1, appWaipu:
		switch p.WakeLockSize {
		case 2:
			return StatePaused
		case 3:
			return StatePlaying
		}
		return StateStandby

	case appTwitch:
		if p.WakeLockSize == 2 {
			return StatePaused
		}
		if p.MediaSessionState == mediaSessionStatePlaying || p.MediaSessionState == mediaSessionStateBuffer {
			return StatePlaying
		}
		return StateStandby
	}

	// Generic fallbacks: the media session state when one is reported,
	// otherwise the wake lock count.
	if p.MediaSessionState != 0 {
		switch p.MediaSessionState {
		case mediaSessionStatePaused:
			return StatePaused
		case mediaSessionStatePlaying:
			return StatePlaying
		}
		return StateStandby
	}

	if p.WakeLockSize == 1 {
		return StatePlaying
	}
	return StatePaused
}
