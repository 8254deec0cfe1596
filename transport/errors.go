package transport

import "fmt"

func errUnregisteredHandler(kind uint8, target int) error {
	return fmt.Errorf("transport: no handler registered for kind %d on PE %d", kind, target)
}

func errUnregisteredRegion(regionID uint64, target int) error {
	return fmt.Errorf("transport: no region %d registered on PE %d", regionID, target)
}
