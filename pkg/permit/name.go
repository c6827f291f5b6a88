package permit

// Name identifies a host capability gated by user consent.
type Name string

// Capability names in the standard host vocabulary.
const (
	Geolocation        Name = "geolocation"
	Notifications      Name = "notifications"
	Push               Name = "push"
	MIDI               Name = "midi"
	Camera             Name = "camera"
	Microphone         Name = "microphone"
	Speaker            Name = "speaker"
	DeviceInfo         Name = "device-info"
	BackgroundFetch    Name = "background-fetch"
	BackgroundSync     Name = "background-sync"
	Bluetooth          Name = "bluetooth"
	PersistentStorage  Name = "persistent-storage"
	AmbientLightSensor Name = "ambient-light-sensor"
	Accelerometer      Name = "accelerometer"
	Gyroscope          Name = "gyroscope"
	Magnetometer       Name = "magnetometer"
	ClipboardRead      Name = "clipboard-read"
	ClipboardWrite     Name = "clipboard-write"
	DisplayCapture     Name = "display-capture"
	NFC                Name = "nfc"
)

var allNames = []Name{
	Geolocation,
	Notifications,
	Push,
	MIDI,
	Camera,
	Microphone,
	Speaker,
	DeviceInfo,
	BackgroundFetch,
	BackgroundSync,
	Bluetooth,
	PersistentStorage,
	AmbientLightSensor,
	Accelerometer,
	Gyroscope,
	Magnetometer,
	ClipboardRead,
	ClipboardWrite,
	DisplayCapture,
	NFC,
}

var nameSet = func() map[Name]struct{} {
	set := make(map[Name]struct{}, len(allNames))
	for _, n := range allNames {
		set[n] = struct{}{}
	}
	return set
}()

// Names returns every capability name in the standard vocabulary.
func Names() []Name {
	names := make([]Name, len(allNames))
	copy(names, allNames)
	return names
}

// Valid reports whether n belongs to the standard vocabulary. Query does not
// gate on this locally; the provider is authoritative and reports names it
// does not recognize as unsupported.
func (n Name) Valid() bool {
	_, ok := nameSet[n]
	return ok
}

func (n Name) String() string {
	return string(n)
}
