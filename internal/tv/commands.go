package tv

// Shell fragments for the individual device facts. Each probe is cheap on
// its own; the refresh path chains them into one round trip because every
// shell command pays the full transport latency.
const (
	cmdScreenOn = `(dumpsys power | grep 'Display Power' | grep -q 'state=ON' || dumpsys power | grep -q 'mScreenOn=true')`
	cmdAwake    = `dumpsys power | grep mWakefulness | grep -q Awake`
	cmdWakeLock = `dumpsys power | grep Locks | grep 'size='`

	cmdCurrentApp = `CURRENT_APP=$(dumpsys window windows | grep mCurrentFocus) && ` +
		`CURRENT_APP=${CURRENT_APP#* * } && CURRENT_APP=${CURRENT_APP%%/*} && echo $CURRENT_APP`

	cmdMediaSession = `dumpsys media_session | grep -A 100 'Sessions Stack' | grep -m 1 'state=PlaybackState {'`

	cmdRunningApps = `ps | grep u0_a`
)

// PropertiesCommand gathers every refresh fact in one round trip: the
// screen and awake flags as bare characters, then the wake lock, current
// app, and media session lines, then the running app list. ParseProperties
// decodes the combined output.
const PropertiesCommand = cmdScreenOn + ` && echo -e '1\c' || echo -e '0\c'; ` +
	cmdAwake + ` && echo -e '1\c' || echo -e '0\c'; ` +
	cmdWakeLock + `; ` +
	cmdCurrentApp + `; ` +
	cmdMediaSession + `; ` +
	cmdRunningApps

// Key event codes sent with "input keyevent".
const (
	keyPower = 26
	keyHome  = 3
	keySleep = 223
)

// Intent categories for launching apps through the monkey runner.
const (
	intentLaunch = "android.intent.category.LAUNCHER"
	intentHome   = "android.intent.category.HOME"
)
