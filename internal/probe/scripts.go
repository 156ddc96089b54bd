package probe

// Built-in probe names
const (
	NameScreen   = "screen"
	NameFonts    = "fonts"
	NameCanvas   = "canvas"
	NameAudio    = "audio"
	NameWebGL    = "webgl"
	NamePlugins  = "plugins"
	NameAPIs     = "apis"
	NameLocale   = "locale"
	NameSensors  = "sensors"
	NameHardware = "hardware"
	NameBattery  = "battery"
	NameMath     = "math"
	NameKeyOrder = "keyorder"
)

// Default returns a registry with the built-in probes evaluated through eval
func Default(eval Evaluator) *Registry {
	r := &Registry{index: make(map[string]int)}
	for _, s := range builtinScripts {
		// names are unique by construction
		_ = r.Register(NewScriptProbe(s.name, s.body, eval))
	}
	return r
}

var builtinScripts = []struct {
	name string
	body string
}{
	{NameScreen, screenScript},
	{NameFonts, fontsScript},
	{NameCanvas, canvasScript},
	{NameAudio, audioScript},
	{NameWebGL, webglScript},
	{NamePlugins, pluginsScript},
	{NameAPIs, apisScript},
	{NameLocale, localeScript},
	{NameSensors, sensorsScript},
	{NameHardware, hardwareScript},
	{NameBattery, batteryScript},
	{NameMath, mathScript},
	{NameKeyOrder, keyOrderScript},
}

const screenScript = `async () => {
	if (typeof screen === "undefined") return NotSupported;
	return {
		width: screen.width,
		height: screen.height,
		availWidth: screen.availWidth,
		availHeight: screen.availHeight,
		colorDepth: screen.colorDepth,
		pixelDepth: screen.pixelDepth,
		devicePixelRatio: window.devicePixelRatio || 1,
		orientation: screen.orientation ? screen.orientation.type : null,
	};
}`

// Width comparison against generic fallbacks; a font is present when it
// changes the rendered width for at least one base family.
const fontsScript = `async () => {
	const fonts = [
		"Arial", "Arial Black", "Calibri", "Cambria", "Comic Sans MS", "Consolas",
		"Courier New", "DejaVu Sans", "Georgia", "Helvetica", "Helvetica Neue",
		"Impact", "Liberation Mono", "Lucida Console", "Menlo", "Monaco",
		"Noto Sans", "Palatino", "Roboto", "Segoe UI", "Tahoma", "Times New Roman",
		"Trebuchet MS", "Ubuntu", "Verdana",
	];
	const canvas = document.createElement("canvas");
	try {
		const ctx = canvas.getContext("2d");
		if (!ctx || typeof ctx.measureText !== "function") return NotSupported;
		const sample = "mmmmmmmmmmlli1WQ@#";
		const bases = ["monospace", "sans-serif", "serif"];
		const widths = {};
		for (const b of bases) {
			ctx.font = "72px " + b;
			widths[b] = ctx.measureText(sample).width;
		}
		const found = [];
		for (const f of fonts) {
			for (const b of bases) {
				ctx.font = "72px \"" + f + "\", " + b;
				if (ctx.measureText(sample).width !== widths[b]) {
					found.push(f);
					break;
				}
			}
		}
		return found;
	} finally {
		canvas.width = 0;
		canvas.height = 0;
	}
}`

// The pixel check runs before anything is trusted: noise-injecting
// extensions perturb getImageData even for flat fills.
const canvasScript = `async () => {
	const canvas = document.createElement("canvas");
	canvas.width = 240;
	canvas.height = 60;
	try {
		const ctx = canvas.getContext("2d");
		if (!ctx || typeof ctx.getImageData !== "function") return NotSupported;

		ctx.fillStyle = "rgb(255, 0, 0)";
		ctx.fillRect(0, 0, 10, 10);
		ctx.fillStyle = "rgb(0, 0, 255)";
		ctx.fillRect(10, 0, 10, 10);
		const expected = [
			[2, 2, [255, 0, 0, 255]],
			[15, 5, [0, 0, 255, 255]],
			[30, 30, [0, 0, 0, 0]],
		];
		for (const [x, y, want] of expected) {
			const px = ctx.getImageData(x, y, 1, 1).data;
			for (let i = 0; i < 4; i++) {
				if (px[i] !== want[i]) return Blocked;
			}
		}

		ctx.clearRect(0, 0, canvas.width, canvas.height);
		ctx.textBaseline = "top";
		ctx.font = "14px 'Arial'";
		ctx.fillStyle = "#f60";
		ctx.fillRect(125, 1, 62, 20);
		ctx.fillStyle = "#069";
		ctx.fillText("Cwm fjordbank glyphs vext quiz, \u{1F603}", 2, 15);
		ctx.fillStyle = "rgba(102, 204, 0, 0.7)";
		ctx.fillText("Cwm fjordbank glyphs vext quiz, \u{1F603}", 4, 17);
		ctx.globalCompositeOperation = "multiply";
		for (const [color, x] of [["#f2f", 40], ["#2ff", 80], ["#ff2", 60]]) {
			ctx.fillStyle = color;
			ctx.beginPath();
			ctx.arc(x, 40, 20, 0, Math.PI * 2, true);
			ctx.closePath();
			ctx.fill();
		}
		return canvas.toDataURL();
	} finally {
		canvas.width = 0;
		canvas.height = 0;
	}
}`

// Real hardware output varies across the sampled window; a flat window
// means the buffer was replaced.
const audioScript = `async () => {
	const Ctx = window.OfflineAudioContext || window.webkitOfflineAudioContext;
	if (!Ctx) return NotSupported;
	const ctx = new Ctx(1, 5000, 44100);
	const osc = ctx.createOscillator();
	const comp = ctx.createDynamicsCompressor();
	try {
		osc.type = "triangle";
		osc.frequency.value = 10000;
		comp.threshold.value = -50;
		comp.knee.value = 40;
		comp.ratio.value = 12;
		comp.attack.value = 0;
		comp.release.value = 0.25;
		osc.connect(comp);
		comp.connect(ctx.destination);
		osc.start(0);
		const buffer = await ctx.startRendering();
		const data = buffer.getChannelData(0);
		const first = data[4500];
		let constant = true;
		let sum = 0;
		for (let i = 4500; i < 5000; i++) {
			sum += Math.abs(data[i]);
			if (data[i] !== first) constant = false;
		}
		if (constant) return Blocked;
		return sum.toString();
	} finally {
		osc.disconnect();
		comp.disconnect();
	}
}`

const webglScript = `async () => {
	const canvas = document.createElement("canvas");
	let gl = null;
	try {
		gl = canvas.getContext("webgl") || canvas.getContext("experimental-webgl");
		if (!gl) return NotSupported;
		const names = [
			"VERSION", "SHADING_LANGUAGE_VERSION", "VENDOR", "RENDERER",
			"MAX_TEXTURE_SIZE", "MAX_VIEWPORT_DIMS", "MAX_RENDERBUFFER_SIZE",
			"MAX_VERTEX_ATTRIBS", "MAX_VERTEX_UNIFORM_VECTORS",
			"MAX_FRAGMENT_UNIFORM_VECTORS", "ALIASED_LINE_WIDTH_RANGE",
			"ALIASED_POINT_SIZE_RANGE",
		];
		const params = {};
		for (const name of names) {
			const v = gl.getParameter(gl[name]);
			params[name] = v && typeof v === "object" && "length" in v ? Array.from(v) : v;
		}
		const dbg = gl.getExtension("WEBGL_debug_renderer_info");
		if (dbg) {
			params.UNMASKED_VENDOR = gl.getParameter(dbg.UNMASKED_VENDOR_WEBGL);
			params.UNMASKED_RENDERER = gl.getParameter(dbg.UNMASKED_RENDERER_WEBGL);
		}
		params.extensions = (gl.getSupportedExtensions() || []).slice().sort();
		return params;
	} finally {
		if (gl) {
			const lose = gl.getExtension("WEBGL_lose_context");
			if (lose) lose.loseContext();
		}
		canvas.width = 0;
		canvas.height = 0;
	}
}`

// Privacy extensions replace navigator.plugins with a plain object or a
// script-defined getter; either is reported as interference.
const pluginsScript = `async () => {
	if (!("plugins" in navigator) || !navigator.plugins) return NotSupported;
	if (typeof PluginArray !== "undefined" && !(navigator.plugins instanceof PluginArray)) return Blocked;
	if (Object.getOwnPropertyDescriptor(navigator, "plugins")) return Blocked;
	const desc = Object.getOwnPropertyDescriptor(Navigator.prototype, "plugins");
	if (desc && desc.get && !/\[native code\]/.test(Function.prototype.toString.call(desc.get))) return Blocked;
	const out = [];
	for (let i = 0; i < navigator.plugins.length; i++) {
		const p = navigator.plugins[i];
		const mimeTypes = [];
		for (let j = 0; j < p.length; j++) mimeTypes.push(p[j].type);
		out.push({ name: p.name, filename: p.filename, description: p.description, mimeTypes });
	}
	return out;
}`

const apisScript = `async () => {
	const names = [
		"fetch", "WebSocket", "WebAssembly", "SharedArrayBuffer", "Atomics",
		"ServiceWorker", "PushManager", "Notification", "PaymentRequest",
		"IntersectionObserver", "ResizeObserver", "BroadcastChannel",
		"RTCPeerConnection", "indexedDB", "caches", "speechSynthesis",
		"MediaRecorder", "OffscreenCanvas", "WebTransport", "Bluetooth",
		"CompressionStream", "structuredClone", "queueMicrotask",
	];
	return names.filter((n) => n in window);
}`

const localeScript = `async () => {
	if (typeof Intl === "undefined") return NotSupported;
	const opts = Intl.DateTimeFormat().resolvedOptions();
	return {
		language: navigator.language || null,
		languages: Array.from(navigator.languages || []),
		locale: opts.locale || null,
		timeZone: opts.timeZone || null,
		calendar: opts.calendar || null,
		numberingSystem: opts.numberingSystem || null,
		timezoneOffset: new Date(2020, 0, 1).getTimezoneOffset(),
	};
}`

const sensorsScript = `async () => {
	const names = [
		"Accelerometer", "Gyroscope", "Magnetometer", "AbsoluteOrientationSensor",
		"RelativeOrientationSensor", "LinearAccelerationSensor", "GravitySensor",
		"AmbientLightSensor", "DeviceMotionEvent", "DeviceOrientationEvent",
	];
	const out = {};
	for (const n of names) out[n] = n in window;
	return out;
}`

const hardwareScript = `async () => {
	return {
		hardwareConcurrency: navigator.hardwareConcurrency || null,
		deviceMemory: navigator.deviceMemory || null,
		maxTouchPoints: navigator.maxTouchPoints || 0,
		platform: navigator.platform || null,
		usb: "usb" in navigator,
		hid: "hid" in navigator,
		serial: "serial" in navigator,
		bluetooth: "bluetooth" in navigator,
		gpu: "gpu" in navigator,
		xr: "xr" in navigator,
	};
}`

const batteryScript = `async () => {
	return {
		getBattery: typeof navigator.getBattery === "function",
		BatteryManager: typeof window.BatteryManager !== "undefined",
	};
}`

const mathScript = `async () => {
	const M = Math;
	return [
		M.acos(0.123124234234234242),
		M.acosh(1e308),
		M.asin(0.123124234234234242),
		M.asinh(1),
		M.atan(0.5),
		M.atanh(0.5),
		M.sin(-1e300),
		M.sinh(1),
		M.cos(10.000000000123),
		M.cosh(1),
		M.tan(-1e300),
		M.tanh(1),
		M.exp(1),
		M.expm1(1),
		M.log1p(10),
		M.pow(M.PI, -100),
		M.cbrt(100),
	].map(String);
}`

const keyOrderScript = `async () => {
	const obj = { b: 1, a: 2, 10: 3, 2: 4, "-1": 5, c: 6 };
	obj.z = 7;
	delete obj.b;
	obj.b = 8;
	const navKeys = [];
	for (const k in navigator) navKeys.push(k);
	return {
		literal: Object.keys(obj).join(","),
		json: JSON.stringify(obj),
		navigator: navKeys.join(","),
	};
}`
