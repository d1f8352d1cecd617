package normalize

import (
	"strconv"
	"strings"
)

const (
	StatusActive    = "active"
	StatusInactive  = "inactive"
	StatusCheckedIn = "checked_in"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Booking is the booking-event view shown in the queue calendar.
type Booking struct {
	ID           string `json:"_id"`
	BookingCode  string `json:"bookingCode,omitempty"`
	Date         string `json:"date,omitempty"`
	StartTime    string `json:"startTime,omitempty"`
	EndTime      string `json:"endTime,omitempty"`
	Sequence     int    `json:"sequence"`
	SupCode      string `json:"supCode,omitempty"`
	SupplierName string `json:"supplierName,omitempty"`
	LicensePlate string `json:"licensePlate,omitempty"`
	TruckType    string `json:"truckType,omitempty"`
	RubberType   string `json:"rubberType,omitempty"`
	Recorder     string `json:"recorder,omitempty"`
	CheckInTime  string `json:"checkInTime,omitempty"`
	Status       string `json:"status"`
}

var sequenceKeys = []string{"sequence", "queue", "queueNo", "queue_no", "queueNumber", "queue_number", "order", "position"}

var (
	bookings = adapter[Booking]{name: "bookings", build: buildBooking}

	BookingAdapter Shaper = bookings
)

// Bookings normalizes a booking list. Upstream order is kept; entries without
// a queue position get their 1-based index.
func Bookings(raw []byte) (Result[Booking], error) {
	return bookings.normalize(raw)
}

func BookingRecord(raw []byte) (Booking, error) {
	return bookings.record(raw)
}

func buildBooking(r record, index int) (Booking, bool) {
	b := Booking{
		BookingCode:  r.str("bookingCode", "booking_code", "code"),
		Date:         dateOnly(r.str("date", "bookingDate", "booking_date")),
		StartTime:    r.str("startTime", "start_time", "start", "timeStart"),
		EndTime:      r.str("endTime", "end_time", "end", "timeEnd"),
		SupCode:      r.str("supCode", "sup_code", "supplierCode"),
		SupplierName: r.str("supplierName", "supplier_name", "supName"),
		LicensePlate: r.str("licensePlate", "license_plate", "truckRegister", "truck_register", "plate"),
		TruckType:    r.str("truckType", "truck_type"),
		RubberType:   r.str("rubberType", "rubber_type", "rubberTypeName"),
		Recorder:     r.str("recorder", "recordedBy", "createdBy"),
		CheckInTime:  r.str("checkInTime", "checkinTime", "check_in_time", "checkedInAt"),
		Status:       bookingStatus(r.str("status", "bookingStatus")),
	}

	if sup := r.obj("supplier"); sup != nil {
		code, name := splitSupplierName(sup.str("displayName", "name"))
		if b.SupCode == "" {
			b.SupCode = sup.str("supCode", "sup_code", "code")
		}
		if b.SupCode == "" {
			b.SupCode = code
		}
		if b.SupplierName == "" {
			b.SupplierName = name
		}
	}
	if b.RubberType == "" {
		if rt := r.obj("rubberType"); rt != nil {
			b.RubberType = rt.str("name", "displayName", "code")
		}
	}

	var upstreamSeq string
	if seq, ok := r.int(sequenceKeys...); ok {
		b.Sequence = seq
		upstreamSeq = strconv.Itoa(seq)
	} else {
		b.Sequence = index + 1
	}

	if b.Date == "" && b.BookingCode == "" {
		return Booking{}, false
	}

	b.ID = r.str("_id", "id", "bookingId", "booking_id")
	if b.ID == "" {
		b.ID = b.BookingCode
	}
	if b.ID == "" {
		// Only fields carried by the record itself; the list position is not.
		b.ID = fallbackID("booking", b.Date, b.StartTime, upstreamSeq, b.SupCode, b.LicensePlate)
	}
	return b, true
}

// dateOnly trims ISO timestamps to their calendar date.
func dateOnly(v string) string {
	if len(v) > 10 && v[4] == '-' && v[7] == '-' && (v[10] == 'T' || v[10] == ' ') {
		return v[:10]
	}
	return v
}

func bookingStatus(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "checked_in", "checked-in", "checkedin", "checkin", "check_in", "arrived":
		return StatusCheckedIn
	case "completed", "complete", "done", "finished":
		return StatusCompleted
	case "cancelled", "canceled", "cancel":
		return StatusCancelled
	default:
		return StatusActive
	}
}
