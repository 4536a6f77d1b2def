package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

type registerLoad struct {
	reg  byte
	data []byte
}

// registerLoads collects repeated -load reg=hexdata flags.
type registerLoads []registerLoad

func (r *registerLoads) String() string {
	parts := make([]string, len(*r))
	for i, l := range *r {
		parts[i] = fmt.Sprintf("0x%02x=%s", l.reg, hex.EncodeToString(l.data))
	}
	return strings.Join(parts, ",")
}

func (r *registerLoads) Set(s string) error {
	regStr, dataStr, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected reg=hexdata, got %q", s)
	}
	reg, err := strconv.ParseUint(regStr, 0, 8)
	if err != nil {
		return fmt.Errorf("register %q: %w", regStr, err)
	}
	if reg&0x80 != 0 {
		return fmt.Errorf("register 0x%02x overlaps the read flag", reg)
	}
	data, err := hex.DecodeString(dataStr)
	if err != nil {
		return fmt.Errorf("data %q: %w", dataStr, err)
	}
	*r = append(*r, registerLoad{reg: byte(reg), data: data})
	return nil
}
