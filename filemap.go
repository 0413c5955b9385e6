package apx

import "sort"

// Address areas used by AutoInsert. Port data files live at the bottom of
// the address space, node definitions and user data files get their own
// areas further up. Each area assigns addresses on fixed boundaries.
const (
	PORT_DATA_ADDRESS_START     uint32 = 0x0
	PORT_DATA_ADDRESS_BOUNDARY  uint32 = 0x400
	DEFINITION_ADDRESS_START    uint32 = 0x4000000
	DEFINITION_ADDRESS_BOUNDARY uint32 = 0x10000
	USER_DATA_ADDRESS_START     uint32 = 0x20000000
	USER_DATA_ADDRESS_BOUNDARY  uint32 = 0x1000
	USER_DATA_ADDRESS_END       uint32 = 0x3FFFFBFF
)

// FileMap holds files sorted by ascending base address with no overlap
// between their address ranges. One map instance tracks local files, a
// second one tracks files discovered from the peer.
type FileMap struct {
	files []*File
}

func NewFileMap() *FileMap {
	return &FileMap{}
}

func (m *FileMap) Len() int {
	return len(m.files)
}

// Get returns the file at position i in address order
func (m *FileMap) Get(i int) *File {
	if i < 0 || i >= len(m.files) {
		return nil
	}
	return m.files[i]
}

func (m *FileMap) Clear() {
	m.files = m.files[:0]
}

// Insert adds a file at its already assigned address. Fails when the file
// range overlaps an existing entry.
func (m *FileMap) Insert(file *File) error {
	if file == nil {
		return ErrNullPtr
	}
	if file.Address() == RMF_INVALID_ADDRESS {
		return ErrInvalidArgument
	}
	base := file.Address()
	end := base + file.Length()
	pos := sort.Search(len(m.files), func(i int) bool {
		return m.files[i].Address() >= base
	})
	if pos > 0 {
		prev := m.files[pos-1]
		if prev.Address()+prev.Length() > base {
			return ErrInvalidArgument
		}
	}
	if pos < len(m.files) && m.files[pos].Address() < end {
		return ErrInvalidArgument
	}
	m.files = append(m.files, nil)
	copy(m.files[pos+1:], m.files[pos:])
	m.files[pos] = file
	return nil
}

// AutoInsert assigns the lowest free address inside the area matching the
// file kind, aligned to the area boundary, then inserts the file
func (m *FileMap) AutoInsert(file *File) error {
	if file == nil {
		return ErrNullPtr
	}
	var start, boundary, end uint32
	switch file.Kind() {
	case APX_OUTDATA_FILE, APX_INDATA_FILE:
		start = PORT_DATA_ADDRESS_START
		boundary = PORT_DATA_ADDRESS_BOUNDARY
		end = DEFINITION_ADDRESS_START
	case APX_DEFINITION_FILE:
		start = DEFINITION_ADDRESS_START
		boundary = DEFINITION_ADDRESS_BOUNDARY
		end = USER_DATA_ADDRESS_START
	default:
		start = USER_DATA_ADDRESS_START
		boundary = USER_DATA_ADDRESS_BOUNDARY
		end = USER_DATA_ADDRESS_END
	}
	address := start
	for _, existing := range m.files {
		existingEnd := existing.Address() + existing.Length()
		if existingEnd <= address {
			continue
		}
		if existing.Address() >= address+file.Length() {
			// The gap before this occupant holds the file
			break
		}
		// Bump past this occupant, keeping alignment
		address = alignAddress(existingEnd, boundary)
	}
	if address+file.Length() > end {
		return ErrBufferFull
	}
	file.setAddress(address)
	return m.Insert(file)
}

func alignAddress(address uint32, boundary uint32) uint32 {
	remainder := address % boundary
	if remainder == 0 {
		return address
	}
	return address + boundary - remainder
}

// FindByAddress returns the unique file whose range [base, base+length)
// contains address, or nil
func (m *FileMap) FindByAddress(address uint32) *File {
	pos := sort.Search(len(m.files), func(i int) bool {
		return m.files[i].Address() > address
	})
	if pos == 0 {
		return nil
	}
	candidate := m.files[pos-1]
	if address < candidate.Address()+candidate.Length() {
		return candidate
	}
	return nil
}
