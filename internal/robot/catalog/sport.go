package catalog

var (
	xyz = []Param{
		{Name: "x", Kind: KindNumber, Required: true},
		{Name: "y", Kind: KindNumber, Required: true},
		{Name: "z", Kind: KindNumber, Required: true},
	}
	numberData = []Param{{Name: "data", Kind: KindNumber, Required: true}}
	boolData   = []Param{{Name: "data", Kind: KindBool, Required: true}}
)

// moveEntry builds a directional shortcut of Move with default velocities.
func moveEntry(name, description string, x, y float64) Entry {
	return Entry{
		Name:        name,
		Topic:       TopicSport,
		APIID:       APIMove,
		Params:      xyz,
		Defaults:    map[string]any{"x": x, "y": y, "z": 0.0},
		Description: description,
	}
}

// Sport request identifiers referenced outside the table.
const (
	APIStopMove = 1003
	APIMove     = 1008
	APIHello    = 1016
	// APITrajectoryFollow takes a path of waypoints and has no table entry.
	APITrajectoryFollow = 1018
	APIGetState         = 1034
)

// sportEntries is the built-in sport command table, in menu order.
var sportEntries = []Entry{
	{Name: "damp", Topic: TopicSport, APIID: 1001, Description: "Cut motor torque (emergency damp)"},
	{Name: "balance_stand", Topic: TopicSport, APIID: 1002, Description: "Balanced stand"},
	{Name: "stop", Topic: TopicSport, APIID: APIStopMove, Description: "Stop moving"},
	{Name: "stand_up", Topic: TopicSport, APIID: 1004, Description: "Stand up"},
	{Name: "stand_down", Topic: TopicSport, APIID: 1005, Description: "Lie down"},
	{Name: "recovery_stand", Topic: TopicSport, APIID: 1006, Description: "Recover to standing"},
	{Name: "euler", Topic: TopicSport, APIID: 1007, Params: xyz, Description: "Body attitude (roll, pitch, yaw)"},
	{Name: "move", Topic: TopicSport, APIID: APIMove, Params: xyz, Description: "Move with x/y/z velocity"},
	{Name: "sit", Topic: TopicSport, APIID: 1009, Description: "Sit"},
	{Name: "rise_sit", Topic: TopicSport, APIID: 1010, Description: "Rise from sitting"},
	{Name: "switch_gait", Topic: TopicSport, APIID: 1011, Params: []Param{{Name: "d", Kind: KindNumber, Required: true}}, Description: "Switch gait"},
	{Name: "trigger", Topic: TopicSport, APIID: 1012, Description: "Trigger"},
	{Name: "body_height", Topic: TopicSport, APIID: 1013, Params: numberData, Description: "Set body height"},
	{Name: "foot_raise_height", Topic: TopicSport, APIID: 1014, Params: numberData, Description: "Set foot raise height"},
	{Name: "speed_level", Topic: TopicSport, APIID: 1015, Params: numberData, Description: "Set speed level"},
	{Name: "hello", Topic: TopicSport, APIID: APIHello, Description: "Wave hello"},
	{Name: "stretch", Topic: TopicSport, APIID: 1017, Description: "Stretch"},
	{Name: "continuous_gait", Topic: TopicSport, APIID: 1019, Params: boolData, Description: "Toggle continuous gait"},
	{Name: "content", Topic: TopicSport, APIID: 1020, Description: "Content"},
	{Name: "wallow", Topic: TopicSport, APIID: 1021, Description: "Wallow"},
	{Name: "dance1", Topic: TopicSport, APIID: 1022, Description: "Dance routine 1"},
	{Name: "dance2", Topic: TopicSport, APIID: 1023, Description: "Dance routine 2"},
	{Name: "get_body_height", Topic: TopicSport, APIID: 1024, Description: "Query body height"},
	{Name: "get_foot_raise_height", Topic: TopicSport, APIID: 1025, Description: "Query foot raise height"},
	{Name: "get_speed_level", Topic: TopicSport, APIID: 1026, Description: "Query speed level"},
	{Name: "switch_joystick", Topic: TopicSport, APIID: 1027, Params: boolData, Description: "Toggle joystick control"},
	{Name: "pose", Topic: TopicSport, APIID: 1028, Params: boolData, Description: "Toggle pose mode"},
	{Name: "scrape", Topic: TopicSport, APIID: 1029, Description: "Scrape"},
	{Name: "front_flip", Topic: TopicSport, APIID: 1030, Description: "Front flip"},
	{Name: "front_jump", Topic: TopicSport, APIID: 1031, Description: "Front jump"},
	{Name: "front_pounce", Topic: TopicSport, APIID: 1032, Description: "Front pounce"},
	{Name: "wiggle_hips", Topic: TopicSport, APIID: 1033, Description: "Wiggle hips"},
	{Name: "get_state", Topic: TopicSport, APIID: APIGetState, Description: "Query sport state"},
	{Name: "economic_gait", Topic: TopicSport, APIID: 1035, Description: "Economic gait"},
	{Name: "finger_heart", Topic: TopicSport, APIID: 1036, Description: "Finger heart"},
	{Name: "left_flip", Topic: TopicSport, APIID: 1042, Description: "Left flip"},
	{Name: "right_flip", Topic: TopicSport, APIID: 1043, Description: "Right flip"},
	{Name: "back_flip", Topic: TopicSport, APIID: 1044, Description: "Back flip"},
	{Name: "lead_follow", Topic: TopicSport, APIID: 1045, Description: "Lead follow"},
	{Name: "handstand", Topic: TopicSport, APIID: 1301, Params: boolData, Defaults: map[string]any{"data": true}, Description: "Handstand"},
	{Name: "cross_step", Topic: TopicSport, APIID: 1302, Description: "Cross step"},
	{Name: "onesided_step", Topic: TopicSport, APIID: 1303, Description: "One-sided step"},
	{Name: "bound", Topic: TopicSport, APIID: 1304, Params: boolData, Defaults: map[string]any{"data": true}, Description: "Bound gait"},
	{Name: "moon_walk", Topic: TopicSport, APIID: 1305, Params: boolData, Defaults: map[string]any{"data": true}, Description: "Moon walk"},
	moveEntry("move_forward", "Move forward at 0.5", 0.5, 0),
	moveEntry("move_backward", "Move backward at 0.5", -0.5, 0),
	moveEntry("move_left", "Move left at 0.5", 0, 0.5),
	moveEntry("move_right", "Move right at 0.5", 0, -0.5),
}
