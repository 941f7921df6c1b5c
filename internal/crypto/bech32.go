package crypto

import "fmt"

// Minimal bech32 encoder (BIP-173) for rendering account addresses. Only
// encoding is needed; addresses read back from APIs are treated as opaque
// strings.

const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

var bech32Gen = [5]uint32{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func bech32Polymod(values []byte) uint32 {
	chk := uint32(1)
	for _, v := range values {
		b := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ uint32(v)
		for i := 0; i < 5; i++ {
			if (b>>uint(i))&1 == 1 {
				chk ^= bech32Gen[i]
			}
		}
	}
	return chk
}

func bech32HRPExpand(hrp string) []byte {
	out := make([]byte, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]>>5)
	}
	out = append(out, 0)
	for i := 0; i < len(hrp); i++ {
		out = append(out, hrp[i]&31)
	}
	return out
}

func bech32Checksum(hrp string, data []byte) []byte {
	values := append(bech32HRPExpand(hrp), data...)
	values = append(values, 0, 0, 0, 0, 0, 0)
	polymod := bech32Polymod(values) ^ 1
	out := make([]byte, 6)
	for i := 0; i < 6; i++ {
		out[i] = byte(polymod >> uint(5*(5-i)) & 31)
	}
	return out
}

// convertBits regroups data from 8-bit to 5-bit groups, padding the tail.
func convertBits(data []byte) []byte {
	var out []byte
	var acc, bits uint
	for _, b := range data {
		acc = acc<<8 | uint(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			out = append(out, byte(acc>>bits&31))
		}
	}
	if bits > 0 {
		out = append(out, byte(acc<<(5-bits)&31))
	}
	return out
}

func bech32Encode(hrp string, data []byte) (string, error) {
	grouped := convertBits(data)
	combined := append(grouped, bech32Checksum(hrp, grouped)...)
	if len(hrp)+1+len(combined) > 90 {
		return "", fmt.Errorf("crypto: bech32 string too long for hrp %q", hrp)
	}
	out := make([]byte, 0, len(hrp)+1+len(combined))
	out = append(out, hrp...)
	out = append(out, '1')
	for _, v := range combined {
		out = append(out, bech32Charset[v])
	}
	return string(out), nil
}
