// Package state maps opaque wire status codes to the closed set of
// trailer states and derives their category, colour, and cancelling
// partner. Every function here is total: unrecognized input falls back
// to Unknown, never an error.
package state

// TrailerState is one reported status a trailer can be in.
type TrailerState int

const (
	Unknown TrailerState = iota
	Ok
	StartLoading
	EndLoading
	Alarm
	Silenced
	AlarmOff
	Resolved
	Armed
	Disarmed
	Quiet
	Emergency
	Warning
	TruckEngineOn
	TruckEngineOff
	TruckParkingOn
	TruckParkingOff
	NetworkOn
	NetworkOff
	TruckDisconnected
	TruckConnected
	ShutdownPending
	ShutdownImmediate
	TruckBatteryLow
	TruckBatteryNormal
	GpsSignalLost
	MotionDetected
	MotionCleared
	HumanDetected
	HumanCleared
	DoorOpened
	DoorClosed
	JammingDetected
	JammingOff
	SystemTurnedOn
)

// Category groups states for filtering and marker colouring.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryLoading
	CategoryAlarm
	CategoryArmed
	CategoryWarning
	CategoryNormal
	CategoryParking
	CategoryRecognition
	CategoryNetwork
	CategoryEngine
)

// Marker palette.
const (
	ColourYellow = "#dccd0a"
	ColourRed    = "#d0021b"
	ColourGreen  = "#7ed321"
	ColourBlue   = "#2a40c2"
	ColourGrey   = "#a0a0a0"
	ColourIndigo = "#606fff"
)

// FromWire resolves a wire status code to a TrailerState. The backend
// currently sends string tokens but historically sent small integers;
// both forms of the same code must resolve identically. JSON numbers
// arrive as float64.
func FromWire(code any) TrailerState {
	switch v := code.(type) {
	case string:
		return fromToken(v)
	case int:
		return fromNumeric(v)
	case int64:
		return fromNumeric(int(v))
	case float64:
		return fromNumeric(int(v))
	default:
		return Unknown
	}
}

func fromToken(token string) TrailerState {
	switch token {
	case "start_loading":
		return StartLoading
	case "end_loading":
		return EndLoading
	case "alarm":
		return Alarm
	case "alarm_silenced":
		return Silenced
	case "alarm_resolved":
		return Resolved
	case "alarm_off":
		return AlarmOff
	case "armed":
		return Armed
	case "disarmed":
		return Disarmed
	case "quiet_alarm":
		return Quiet
	case "emergency_call":
		return Emergency
	case "warning":
		return Warning
	case "truck_disconnected":
		return TruckDisconnected
	case "truck_connected":
		return TruckConnected
	case "shutdown_pending":
		return ShutdownPending
	case "shutdown_immediate":
		return ShutdownImmediate
	case "truck_battery_low":
		return TruckBatteryLow
	case "truck_battery_normal":
		return TruckBatteryNormal
	case "engine_off":
		return TruckEngineOff
	case "engine_on":
		return TruckEngineOn
	case "parking_on":
		return TruckParkingOn
	case "parking_off":
		return TruckParkingOff
	case "motion_detected":
		return MotionDetected
	case "stagnation":
		return MotionCleared
	case "human_detected":
		return HumanDetected
	case "human_cleared":
		return HumanCleared
	case "door_opened":
		return DoorOpened
	case "door_closed":
		return DoorClosed
	case "network_off":
		return NetworkOff
	case "network_on":
		return NetworkOn
	case "jamming_detected":
		return JammingDetected
	case "jamming_off":
		return JammingOff
	case "system_turned_on":
		return SystemTurnedOn
	case "gps_lost":
		return GpsSignalLost
	case "ok":
		return Ok
	default:
		return Unknown
	}
}

// fromNumeric covers the legacy integer codes. Codes >= 100 were
// assigned to frontend-originated events.
func fromNumeric(code int) TrailerState {
	switch code {
	case 0:
		return StartLoading
	case 1:
		return EndLoading
	case 2:
		return Alarm
	case 3:
		return Silenced
	case 4:
		return AlarmOff
	case 5:
		return Armed
	case 6:
		return Disarmed
	case 7:
		return Warning
	case 8:
		return Emergency
	case 9:
		return Quiet
	case 11:
		return TruckDisconnected
	case 12:
		return TruckConnected
	case 13:
		return ShutdownPending
	case 14:
		return ShutdownImmediate
	case 15:
		return TruckBatteryLow
	case 16:
		return TruckBatteryNormal
	case 17:
		return TruckEngineOff
	case 18:
		return TruckEngineOn
	case 19:
		return TruckParkingOn
	case 20:
		return TruckParkingOff
	case 21:
		return MotionDetected
	case 22:
		return MotionCleared
	case 23:
		return HumanDetected
	case 24:
		return HumanCleared
	case 25:
		return DoorOpened
	case 26:
		return DoorClosed
	case 29:
		return NetworkOff
	case 30:
		return NetworkOn
	case 31:
		return JammingDetected
	case 32:
		return JammingOff
	case 99:
		return SystemTurnedOn
	case 100:
		return GpsSignalLost
	default:
		return Unknown
	}
}

// WireToken is the inverse of FromWire for status-change requests and
// filter query params. Unknown and Ok collapse to the neutral token.
func (s TrailerState) WireToken() string {
	switch s {
	case StartLoading:
		return "start_loading"
	case EndLoading:
		return "end_loading"
	case Alarm:
		return "alarm"
	case Silenced:
		return "alarm_silenced"
	case AlarmOff:
		return "alarm_off"
	case Resolved:
		return "alarm_resolved"
	case Armed:
		return "armed"
	case Disarmed:
		return "disarmed"
	case Quiet:
		return "quiet_alarm"
	case Emergency:
		return "emergency_call"
	case Warning:
		return "warning"
	case TruckEngineOn:
		return "engine_on"
	case TruckEngineOff:
		return "engine_off"
	case TruckParkingOn:
		return "parking_on"
	case TruckParkingOff:
		return "parking_off"
	case ShutdownImmediate:
		return "shutdown_immediate"
	case ShutdownPending:
		return "shutdown_pending"
	case TruckBatteryLow:
		return "truck_battery_low"
	case TruckBatteryNormal:
		return "truck_battery_normal"
	case TruckDisconnected:
		return "truck_disconnected"
	case TruckConnected:
		return "truck_connected"
	case GpsSignalLost:
		return "gps_lost"
	case MotionDetected:
		return "motion_detected"
	case MotionCleared:
		return "stagnation"
	case HumanDetected:
		return "human_detected"
	case HumanCleared:
		return "human_cleared"
	case DoorOpened:
		return "door_opened"
	case DoorClosed:
		return "door_closed"
	case JammingDetected:
		return "jamming_detected"
	case JammingOff:
		return "jamming_off"
	case NetworkOn:
		return "network_on"
	case NetworkOff:
		return "network_off"
	case SystemTurnedOn:
		return "system_turned_on"
	case Ok, Unknown:
		return "ok"
	default:
		return "ok"
	}
}

// Category returns the coarse grouping used for event filtering. Note
// Ok deliberately lands in the unknown bucket: plain "ok" transitions
// carry no information an operator filters on.
func (s TrailerState) Category() Category {
	switch s {
	case StartLoading, EndLoading:
		return CategoryLoading
	case Alarm, Silenced, AlarmOff, Resolved, Quiet, Emergency, JammingDetected, ShutdownImmediate:
		return CategoryAlarm
	case Armed, Disarmed:
		return CategoryArmed
	case Warning, ShutdownPending, TruckBatteryLow, TruckDisconnected, GpsSignalLost:
		return CategoryWarning
	case NetworkOff, NetworkOn:
		return CategoryNetwork
	case TruckParkingOn:
		return CategoryParking
	case TruckParkingOff, TruckEngineOff, TruckEngineOn, TruckConnected, TruckBatteryNormal, JammingOff, SystemTurnedOn:
		return CategoryNormal
	case MotionDetected, MotionCleared, HumanDetected, HumanCleared, DoorOpened, DoorClosed:
		return CategoryRecognition
	case Ok, Unknown:
		return CategoryUnknown
	default:
		return CategoryUnknown
	}
}

// MarkerCategory is the grouping used when colouring the trailer's own
// map marker. It differs from Category in how network transitions are
// shown: a trailer that dropped off the network is rendered as alarmed.
func (s TrailerState) MarkerCategory() Category {
	switch s {
	case NetworkOff:
		return CategoryAlarm
	case NetworkOn:
		return CategoryNormal
	default:
		return s.Category()
	}
}

// CancelPartner returns the opposing state that neutralizes s when both
// occur within the cancellation window. The second result is false for
// states with no cancellation semantics. Jamming is one-way: a detected
// jamming is cancelled by jamming_off, but not the other way around.
func (s TrailerState) CancelPartner() (TrailerState, bool) {
	switch s {
	case StartLoading:
		return EndLoading, true
	case EndLoading:
		return StartLoading, true
	case TruckBatteryLow:
		return TruckBatteryNormal, true
	case TruckBatteryNormal:
		return TruckBatteryLow, true
	case TruckDisconnected:
		return TruckConnected, true
	case TruckConnected:
		return TruckDisconnected, true
	case NetworkOff:
		return NetworkOn, true
	case NetworkOn:
		return NetworkOff, true
	case TruckEngineOff:
		return TruckEngineOn, true
	case TruckEngineOn:
		return TruckEngineOff, true
	case JammingDetected:
		return JammingOff, true
	default:
		return Unknown, false
	}
}

// Colour is the display colour for event list rows and map markers.
func (s TrailerState) Colour() string {
	switch s {
	case StartLoading, EndLoading:
		return ColourIndigo
	case ShutdownImmediate, Alarm, Silenced, AlarmOff, Resolved, Quiet, Emergency,
		HumanDetected, MotionDetected, JammingDetected, DoorOpened, NetworkOff:
		return ColourRed
	case Armed, Disarmed:
		return ColourGreen
	case TruckParkingOff, TruckParkingOn:
		return ColourBlue
	case ShutdownPending, TruckBatteryLow, TruckDisconnected, GpsSignalLost, Warning,
		MotionCleared, HumanCleared:
		return ColourYellow
	default:
		return ColourGrey
	}
}

func (s TrailerState) String() string {
	if s == Unknown {
		return "unknown"
	}
	return s.WireToken()
}

func (c Category) String() string {
	switch c {
	case CategoryLoading:
		return "loading"
	case CategoryAlarm:
		return "alarm"
	case CategoryArmed:
		return "armed"
	case CategoryWarning:
		return "warning"
	case CategoryNormal:
		return "normal"
	case CategoryParking:
		return "parking"
	case CategoryRecognition:
		return "recognition"
	case CategoryNetwork:
		return "network"
	case CategoryEngine:
		return "engine"
	default:
		return "unknown"
	}
}

// All lists every state except Unknown, in declaration order. Used to
// build default filter sets and the registry tests.
func All() []TrailerState {
	out := make([]TrailerState, 0, int(SystemTurnedOn))
	for s := Ok; s <= SystemTurnedOn; s++ {
		out = append(out, s)
	}
	return out
}
