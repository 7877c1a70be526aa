// Package uploadtest builds small media payloads that pass content sniffing.
package uploadtest

import "bytes"

// JPEG returns size bytes starting with a JFIF header.
func JPEG(size int) []byte {
	header := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01, 0x01}
	return pad(header, size)
}

// MP4 returns size bytes starting with an ISO base media ftyp box.
func MP4(size int) []byte {
	header := []byte{
		0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p',
		'i', 's', 'o', 'm', 0x00, 0x00, 0x02, 0x00,
		'i', 's', 'o', 'm', 'i', 's', 'o', '2',
	}
	return pad(header, size)
}

// Text returns size bytes of plain text.
func Text(size int) []byte {
	return pad([]byte("hello, this is not an image\n"), size)
}

func pad(header []byte, size int) []byte {
	if size < len(header) {
		size = len(header)
	}
	buf := bytes.Repeat([]byte{0x00}, size)
	copy(buf, header)
	return buf
}
