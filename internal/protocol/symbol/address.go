package symbol

func masterPartIndex(nibble byte) byte {
	switch nibble {
	case 0x0:
		return 1
	case 0x1:
		return 2
	case 0x3:
		return 3
	case 0x7:
		return 4
	case 0xF:
		return 5
	}
	return 0
}

// IsMaster reports whether addr is one of the 25 master addresses.
func IsMaster(addr byte) bool {
	return MasterNumber(addr) != 0
}

// MasterNumber returns 1..25 for master addresses, 0 otherwise.
func MasterNumber(addr byte) byte {
	priority := masterPartIndex(addr & 0x0F)
	if priority == 0 {
		return 0
	}
	index := masterPartIndex(addr >> 4)
	if index == 0 {
		return 0
	}
	return 5*(index-1) + priority
}

// IsValidAddress reports whether addr may appear as a participant address.
func IsValidAddress(addr byte) bool {
	return addr != SYN && addr != ESC
}

// SlaveAddress returns the slave address belonging to a master (master + 5).
func SlaveAddress(master byte) byte {
	return master + 5
}
