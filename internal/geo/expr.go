package geo

// Expr is a node of an Earth Engine expression graph as accepted by the REST
// value:compute method. Nodes nest; the client wraps the root into an
// Expression before sending it.
type Expr map[string]any

func Constant(v any) Expr {
	return Expr{"constantValue": v}
}

// Invoke calls a server-side algorithm with named arguments.
func Invoke(fn string, args map[string]Expr) Expr {
	if args == nil {
		args = map[string]Expr{}
	}
	return Expr{"functionInvocationValue": map[string]any{
		"functionName": fn,
		"arguments":    args,
	}}
}

func Array(items ...Expr) Expr {
	return Expr{"arrayValue": map[string]any{"values": items}}
}

func Strings(values []string) Expr {
	items := make([]Expr, len(values))
	for i, v := range values {
		items[i] = Constant(v)
	}
	return Array(items...)
}

func loadImage(id string) Expr {
	return Invoke("Image.load", map[string]Expr{"id": Constant(id)})
}

func selectBands(image Expr, bands ...string) Expr {
	return Invoke("Image.select", map[string]Expr{
		"input":         image,
		"bandSelectors": Strings(bands),
	})
}

func rename(image Expr, names ...string) Expr {
	return Invoke("Image.rename", map[string]Expr{
		"input": image,
		"names": Strings(names),
	})
}

func constantImage(v float64) Expr {
	return Invoke("Image.constant", map[string]Expr{"value": Constant(v)})
}

// binary applies a two-image operator such as Image.gte or Image.divide.
func binary(fn string, a, b Expr) Expr {
	return Invoke(fn, map[string]Expr{"image1": a, "image2": b})
}

func updateMask(image, mask Expr) Expr {
	return Invoke("Image.updateMask", map[string]Expr{"image": image, "mask": mask})
}

func addBands(dst, src Expr) Expr {
	return Invoke("Image.addBands", map[string]Expr{"dstImg": dst, "srcImg": src})
}

// areaKm2 is a single-band image of pixel area in square kilometres.
func areaKm2() Expr {
	return binary("Image.divide", Invoke("Image.pixelArea", nil), constantImage(1e6))
}

func reduceRegion(image, reducer, geometry Expr, scale, maxPixels float64, bestEffort bool) Expr {
	args := map[string]Expr{
		"image":     image,
		"reducer":   reducer,
		"geometry":  geometry,
		"scale":     Constant(scale),
		"maxPixels": Constant(maxPixels),
	}
	if bestEffort {
		args["bestEffort"] = Constant(true)
	}
	return Invoke("Image.reduceRegion", args)
}

func groupReducer(reducer Expr, groupField int, groupName string) Expr {
	return Invoke("Reducer.group", map[string]Expr{
		"reducer":    reducer,
		"groupField": Constant(groupField),
		"groupName":  Constant(groupName),
	})
}

func bufferedPoint(lon, lat, meters float64) Expr {
	point := Invoke("GeometryConstructors.Point", map[string]Expr{
		"coordinates": Constant([]float64{lon, lat}),
	})
	return Invoke("Geometry.buffer", map[string]Expr{
		"geometry": point,
		"distance": Constant(meters),
	})
}

func filterEquals(tableID, property, value string) Expr {
	return Invoke("Collection.filter", map[string]Expr{
		"collection": Invoke("Collection.loadTable", map[string]Expr{"tableId": Constant(tableID)}),
		"filter": Invoke("Filter.equals", map[string]Expr{
			"leftField":  Constant(property),
			"rightValue": Constant(value),
		}),
	})
}
