package ros

// Message definitions in the concatenated form stored in bag connection records.

const headerDefinition = `uint32 seq
time stamp
string frame_id
`

const messageSeparator = "================================================================================\n"

const imageDefinition = `Header header
uint32 height
uint32 width
string encoding
uint8 is_bigendian
uint32 step
uint8[] data

` + messageSeparator + "MSG: std_msgs/Header\n" + headerDefinition

const cameraInfoDefinition = `Header header
uint32 height
uint32 width
string distortion_model
float64[] D
float64[9] K
float64[9] R
float64[12] P
uint32 binning_x
uint32 binning_y
RegionOfInterest roi

` + messageSeparator + "MSG: std_msgs/Header\n" + headerDefinition +
	"\n" + messageSeparator + `MSG: sensor_msgs/RegionOfInterest
uint32 x_offset
uint32 y_offset
uint32 height
uint32 width
bool do_rectify
`

const pointCloud2Definition = `Header header
uint32 height
uint32 width
PointField[] fields
bool is_bigendian
uint32 point_step
uint32 row_step
uint8[] data
bool is_dense

` + messageSeparator + "MSG: std_msgs/Header\n" + headerDefinition +
	"\n" + messageSeparator + `MSG: sensor_msgs/PointField
uint8 INT8    = 1
uint8 UINT8   = 2
uint8 INT16   = 3
uint8 UINT16  = 4
uint8 INT32   = 5
uint8 UINT32  = 6
uint8 FLOAT32 = 7
uint8 FLOAT64 = 8
string name
uint32 offset
uint8 datatype
uint32 count
`

const imuDefinition = `Header header
geometry_msgs/Quaternion orientation
float64[9] orientation_covariance
geometry_msgs/Vector3 angular_velocity
float64[9] angular_velocity_covariance
geometry_msgs/Vector3 linear_acceleration
float64[9] linear_acceleration_covariance

` + messageSeparator + "MSG: std_msgs/Header\n" + headerDefinition +
	"\n" + messageSeparator + `MSG: geometry_msgs/Quaternion
float64 x
float64 y
float64 z
float64 w

` + messageSeparator + `MSG: geometry_msgs/Vector3
float64 x
float64 y
float64 z
`
