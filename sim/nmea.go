package sim

import (
	"fmt"
	"math"
	"time"
)

// calculateChecksum calculates the NMEA checksum for a sentence
func calculateChecksum(sentence string) string {
	var checksum byte
	for i := 1; i < len(sentence); i++ { // Skip the '$' character
		checksum ^= sentence[i]
	}
	return fmt.Sprintf("%02X", checksum)
}

// formatNMEA formats a complete NMEA sentence with checksum
func formatNMEA(sentence string) string {
	checksum := calculateChecksum(sentence)
	return fmt.Sprintf("%s*%s\r\n", sentence, checksum)
}

// nmeaDegMin splits an angle into whole degrees and minutes rounded to four
// decimals. Rounding carries into the degrees, so minutes stay below 60.
func nmeaDegMin(angle float64) (int, float64) {
	const perDegree = 60 * 10000
	units := int64(math.Round(math.Abs(angle) * perDegree))
	return int(units / perDegree), float64(units%perDegree) / 10000
}

// nmeaLatLon formats coordinates as DDMM.MMMM,H,DDDMM.MMMM,H
func nmeaLatLon(lat, lon float64) string {
	latDeg, latMin := nmeaDegMin(lat)
	latHem := "N"
	if lat < 0 {
		latHem = "S"
	}

	lonDeg, lonMin := nmeaDegMin(lon)
	lonHem := "E"
	if lon < 0 {
		lonHem = "W"
	}

	return fmt.Sprintf("%02d%07.4f,%s,%03d%07.4f,%s", latDeg, latMin, latHem, lonDeg, lonMin, lonHem)
}

// nmeaTime formats HHMMSS.SS
func nmeaTime(timestamp time.Time) string {
	utc := timestamp.UTC()
	return fmt.Sprintf("%02d%02d%02d.%02d",
		utc.Hour(), utc.Minute(), utc.Second(), utc.Nanosecond()/10000000)
}

// Sentences renders a target location as the NMEA 0183 burst a GPS receiver on
// the target would emit: GGA, RMC, GLL, VTG and ZDA.
func Sentences(loc TargetLocation, satellites int) []string {
	return []string{
		generateGGA(loc, satellites),
		generateRMC(loc),
		generateGLL(loc),
		generateVTG(loc),
		generateZDA(loc.Timestamp),
	}
}

// generateGGA generates a GGA (Global Positioning System Fix Data) sentence
func generateGGA(loc TargetLocation, satellites int) string {
	sentence := fmt.Sprintf("$GPGGA,%s,%s,1,%02d,1.2,%.1f,M,0.0,M,,",
		loc.Timestamp.UTC().Format("150405"),
		nmeaLatLon(loc.Lat, loc.Lon),
		satellites,
		loc.AbsAlt)
	return formatNMEA(sentence)
}

// generateRMC generates an RMC (Recommended Minimum) sentence
func generateRMC(loc TargetLocation) string {
	sentence := fmt.Sprintf("$GPRMC,%s,A,%s,%.1f,%.1f,%s,,,A",
		loc.Timestamp.UTC().Format("150405"),
		nmeaLatLon(loc.Lat, loc.Lon),
		loc.SpeedKnots(),
		loc.Course(),
		loc.Timestamp.UTC().Format("020106"))
	return formatNMEA(sentence)
}

// generateGLL generates a GLL (Geographic Position - Latitude/Longitude) sentence
func generateGLL(loc TargetLocation) string {
	sentence := fmt.Sprintf("$GPGLL,%s,%s,A,A",
		nmeaLatLon(loc.Lat, loc.Lon),
		nmeaTime(loc.Timestamp))
	return formatNMEA(sentence)
}

// generateVTG generates a VTG (Track Made Good and Ground Speed) sentence
func generateVTG(loc TargetLocation) string {
	knots := loc.SpeedKnots()
	sentence := fmt.Sprintf("$GPVTG,%.1f,T,,M,%.1f,N,%.1f,K,A",
		loc.Course(),
		knots,
		knots*1.852) // 1 knot = 1.852 km/h
	return formatNMEA(sentence)
}

// generateZDA generates a ZDA (UTC Date and Time) sentence
func generateZDA(timestamp time.Time) string {
	utc := timestamp.UTC()
	sentence := fmt.Sprintf("$GPZDA,%s,%02d,%02d,%04d,00,00",
		nmeaTime(utc), utc.Day(), utc.Month(), utc.Year())
	return formatNMEA(sentence)
}
