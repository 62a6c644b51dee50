package state

import "encoding/binary"

var (
	supplyKey       = []byte("ledger/supply")
	holderPrefix    = []byte("ledger/holder/")
	vaultKey        = []byte("vault/state")
	positionPrefix  = []byte("vault/position/")
	allowPrefix     = []byte("vault/allow/")
	accountPrefix   = []byte("account/")
	routePrefix     = []byte("bridge/route/")
	outUsagePrefix  = []byte("bridge/usage/out/")
	inUsagePrefix   = []byte("bridge/usage/in/")
	bucketPrefix    = []byte("bridge/bucket/")
	feeBalanceKey   = []byte("bridge/feebalance")
	nonceKey        = []byte("bridge/nonce")
	processedPrefix = []byte("bridge/processed/")
)

func addrKey(prefix []byte, addr []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(addr))
	key = append(key, prefix...)
	return append(key, addr...)
}

func routeKey(prefix []byte, id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	key := make([]byte, 0, len(prefix)+8)
	key = append(key, prefix...)
	return append(key, buf[:]...)
}

func stringKey(prefix []byte, id string) []byte {
	key := make([]byte, 0, len(prefix)+len(id))
	key = append(key, prefix...)
	return append(key, id...)
}
