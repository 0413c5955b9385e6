package apx

// Compile-time limits of the embedded file manager. These are fixed; the
// per-instance knobs (queue size, receive buffer size, write-notification
// optimizer) are chosen through Config.
const (
	// Maximum number of remote files that can be waiting for a FILE_INFO answer
	APX_MAX_NUM_REQUEST_FILES = 10
	// Scratch size needed to hold the largest command message including header
	APX_MAX_CMD_BUF_SIZE = RMF_HIGH_ADDRESS_SIZE + RMF_CMD_FILE_INFO_BASE_SIZE + RMF_MAX_FILE_NAME + 1
	// Minimum free transmit space required to start (or continue) a data write.
	// Must be large enough that any single command message always fits.
	APX_FILE_WRITE_MSG_FRAGMENTATION_THRESHOLD = 128
	// Remaining free slots at which queue-fill warnings are logged
	APX_MSG_QUEUE_WARN_THRESHOLD = 2
	// Largest length accepted for a single file
	APX_MAX_FILE_SIZE = 0x4000000
	// Longest accepted file name, excluding the NUL terminator
	RMF_MAX_FILE_NAME = 63
)

// Collapse overlapping / duplicate write notifications before they reach the
// message queue. The fallback behaviour simply flushes the queued
// notification whenever a new one cannot be appended to it.
const APX_OPTIMIZE_WRITE_NOTIFICATIONS = true

const (
	APX_CLIENT_MODE = 0
	APX_SERVER_MODE = 1
)
