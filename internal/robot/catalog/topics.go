package catalog

// Data channel topics used by the session and sensor pipelines.
const (
	// TopicSport carries sport mode requests (motion commands).
	TopicSport = "rt/api/sport/request"

	// TopicMotionSwitcher carries motion mode queries and switches.
	TopicMotionSwitcher = "rt/api/motion_switcher/request"

	// TopicLidarSwitch toggles the lidar sensor with "on"/"off".
	TopicLidarSwitch = "rt/utlidar/switch"

	// TopicLidarVoxel streams compressed voxel maps.
	TopicLidarVoxel = "rt/utlidar/voxel_map_compressed"
)

// Motion switcher request identifiers.
const (
	APIMotionModeQuery  = 1001
	APIMotionModeSwitch = 1002
)

// DefaultMotionMode is the operational motion mode the session negotiates
// after connecting.
const DefaultMotionMode = "normal"

// Lidar switch payloads.
const (
	LidarOn  = "on"
	LidarOff = "off"
)
