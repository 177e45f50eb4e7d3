package codec

// Tag identifies which value variant follows in the stream.
type Tag byte

const (
	TagNil        Tag = 0
	TagBool       Tag = 1
	TagChar       Tag = 2  // int8
	TagShort      Tag = 3  // int16
	TagLong       Tag = 4  // int32
	TagFloat      Tag = 5  // float64
	TagString     Tag = 6  // uvarint length + bytes
	TagVector     Tag = 7  // 3 x float32
	TagAngle      Tag = 8  // 3 x float32
	TagEntity     Tag = 9  // uint16 network index
	TagTableBegin Tag = 10 // followed by key/value pairs
	TagTableEnd   Tag = 11

	tagMax = TagTableEnd
)

// String returns the name of the tag.
func (t Tag) String() string {
	switch t {
	case TagNil:
		return "Nil"
	case TagBool:
		return "Bool"
	case TagChar:
		return "Char"
	case TagShort:
		return "Short"
	case TagLong:
		return "Long"
	case TagFloat:
		return "Float"
	case TagString:
		return "String"
	case TagVector:
		return "Vector"
	case TagAngle:
		return "Angle"
	case TagEntity:
		return "Entity"
	case TagTableBegin:
		return "TableBegin"
	case TagTableEnd:
		return "TableEnd"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is a known tag.
func (t Tag) Valid() bool {
	return t <= tagMax
}
