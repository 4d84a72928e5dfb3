package vastu

import "math"

// Direction enum (8 compass points)
type Direction string

const (
	North     Direction = "north"
	Northeast Direction = "northeast"
	East      Direction = "east"
	Southeast Direction = "southeast"
	South     Direction = "south"
	Southwest Direction = "southwest"
	West      Direction = "west"
	Northwest Direction = "northwest"
)

// Directions in clockwise order starting from north
var Directions = []Direction{
	North, Northeast, East, Southeast,
	South, Southwest, West, Northwest,
}

func (d Direction) Valid() bool {
	for _, v := range Directions {
		if d == v {
			return true
		}
	}
	return false
}

// Element enum (panchabhuta)
type Element string

const (
	Earth Element = "earth"
	Water Element = "water"
	Fire  Element = "fire"
	Air   Element = "air"
	Space Element = "space"
)

var Elements = []Element{Earth, Water, Fire, Air, Space}

// RoomType enum
type RoomType string

const (
	Bedroom    RoomType = "bedroom"
	Kitchen    RoomType = "kitchen"
	Bathroom   RoomType = "bathroom"
	LivingRoom RoomType = "living_room"
	DiningRoom RoomType = "dining_room"
	PoojaRoom  RoomType = "pooja_room"
	Study      RoomType = "study"
	Storage    RoomType = "storage"
	Entrance   RoomType = "entrance"
)

var RoomTypes = []RoomType{
	Bedroom, Kitchen, Bathroom, LivingRoom,
	DiningRoom, PoojaRoom, Study, Storage, Entrance,
}

func (t RoomType) Valid() bool {
	for _, v := range RoomTypes {
		if t == v {
			return true
		}
	}
	return false
}

// ElementOf maps each compass direction to its governing element.
func ElementOf(d Direction) Element {
	switch d {
	case Northeast:
		return Water
	case Southeast:
		return Fire
	case Southwest:
		return Earth
	case Northwest:
		return Air
	default:
		// cardinal directions share the center element
		return Space
	}
}

// BearingBetween computes the initial great-circle bearing in degrees
// [0,360) from point (lat1,lng1) to point (lat2,lng2).
func BearingBetween(lat1, lng1, lat2, lng2 float64) float64 {
	p1 := lat1 * math.Pi / 180
	p2 := lat2 * math.Pi / 180
	dl := (lng2 - lng1) * math.Pi / 180

	y := math.Sin(dl) * math.Cos(p2)
	x := math.Cos(p1)*math.Sin(p2) - math.Sin(p1)*math.Cos(p2)*math.Cos(dl)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// DirectionFromBearing quantizes a bearing in degrees onto the 8 compass
// directions. Each sector spans 45 degrees centered on its direction.
func DirectionFromBearing(deg float64) Direction {
	deg = math.Mod(deg+360, 360)
	idx := int(math.Floor((deg+22.5)/45)) % 8
	return Directions[idx]
}

// DirectionOfPlace returns the compass direction of a place relative to the
// property location.
func DirectionOfPlace(propLat, propLng, placeLat, placeLng float64) Direction {
	return DirectionFromBearing(BearingBetween(propLat, propLng, placeLat, placeLng))
}
