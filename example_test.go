package bitcode_test

import (
	"fmt"

	"github.com/rawbytedev/bitcode"
)

func Example() {
	type reading struct {
		Sensor uint8 `bitcode:"enum=6"`
		Temp   int16 `bitcode:"min=-40,max=85"`
		Ok     bool
		Note   *string
	}
	b, err := bitcode.MarshalBits(reading{Sensor: 3, Temp: 21, Ok: true})
	if err != nil {
		panic(err)
	}
	fmt.Println(b.Bits, "bits in", len(b.Bytes), "bytes")

	var out reading
	if err := bitcode.UnmarshalBits(b, &out); err != nil {
		panic(err)
	}
	fmt.Println(out.Sensor, out.Temp, out.Ok, out.Note == nil)
	// Output:
	// 12 bits in 2 bytes
	// 3 21 true true
}

func ExampleWriter() {
	w := bitcode.NewWriter(0)
	w.WriteBool(true)
	w.WriteBool(false)
	w.WriteBool(true)
	b := w.Finish()
	fmt.Printf("%#x %d %s\n", b.Bytes, b.Bits, b.BitString())
	// Output: 0x05 3 101
}

func ExampleUvarintBits() {
	for _, v := range []uint64{0, 3, 200, 70000} {
		fmt.Println(v, bitcode.UvarintBits(v))
	}
	// Output:
	// 0 1
	// 3 4
	// 200 12
	// 70000 38
}
