package host

import (
	"encoding/json"
	"fmt"
)

// Every probe is wrapped in try/catch and returns plain JSON data so a host
// release that moves things around degrades to an empty result.

const structuredLabelsJS = `(async () => {
	try {
		const api = window.WPP && window.WPP.labels;
		if (!api || typeof api.getAllLabels !== 'function') return [];
		const list = await api.getAllLabels();
		return (list || []).map((l) => ({
			id: String(l.id ?? ''),
			name: String(l.name ?? ''),
			color: typeof l.hexColor === 'string' ? l.hexColor : (typeof l.color === 'string' ? l.color : ''),
			colorIndex: typeof l.colorIndex === 'number' ? l.colorIndex : (typeof l.color === 'number' ? l.color : null),
			originalId: String(l.id ?? ''),
		}));
	} catch (e) {
		return [];
	}
})()`

const objectGraphLabelsJS = `(() => {
	try {
		const store = window.Store || (window.WPP && window.WPP.whatsapp);
		const coll = store && (store.Label || store.LabelStore);
		if (!coll) return [];
		let models = [];
		if (typeof coll.getModelsArray === 'function') models = coll.getModelsArray();
		else if (Array.isArray(coll._models)) models = coll._models;
		else if (Array.isArray(coll.models)) models = coll.models;
		return models.map((m) => {
			const a = m.attributes || m;
			return {
				id: String(a.id ?? ''),
				name: String(a.name ?? ''),
				color: typeof a.hexColor === 'string' ? a.hexColor : (typeof a.color === 'string' ? a.color : ''),
				colorIndex: typeof a.colorIndex === 'number' ? a.colorIndex : (typeof a.color === 'number' ? a.color : null),
				originalId: String(a.id ?? ''),
			};
		});
	} catch (e) {
		return [];
	}
})()`

const moduleSampleTemplate = `(() => {
	const perSide = %d;
	const plain = (v, depth) => {
		if (v === null || v === undefined) return null;
		const t = typeof v;
		if (t === 'string' || t === 'number' || t === 'boolean') return v;
		if (t !== 'object' || depth <= 0) return null;
		if (typeof v.getModelsArray === 'function') {
			try { v = v.getModelsArray().map((m) => m.attributes || m); } catch (e) { return null; }
		}
		if (Array.isArray(v)) return v.slice(0, 50).map((x) => plain(x, depth - 1));
		const out = {};
		let n = 0;
		for (const k of Object.keys(v)) {
			if (n++ >= 40) break;
			let x;
			try { x = v[k]; } catch (e) { continue; }
			if (typeof x === 'function') continue;
			out[k] = plain(x, depth - 1);
		}
		return out;
	};
	const exportsOf = (m) => {
		if (!m) return null;
		if (m.exports !== undefined) return m.exports;
		if (m.defaultExport !== undefined) return m.defaultExport;
		return m;
	};
	try {
		let registry = null;
		if (typeof window.require === 'function') {
			try { registry = window.require('__debug').modulesMap; } catch (e) {}
		}
		if (!registry) {
			const chunk = Object.keys(window).find((k) => k.startsWith('webpackChunk'));
			if (chunk && Array.isArray(window[chunk])) {
				let req = null;
				window[chunk].push([[Symbol('overlay')], {}, (r) => { req = r; }]);
				registry = req && req.c;
			}
		}
		if (!registry) return [];
		const keys = Object.keys(registry);
		const picked = keys.length <= perSide * 2 ? keys : keys.slice(0, perSide).concat(keys.slice(-perSide));
		const out = [];
		for (const k of picked) {
			try { out.push(plain(exportsOf(registry[k]), 3)); } catch (e) { out.push(null); }
		}
		return out;
	} catch (e) {
		return [];
	}
})()`

const computedColorTemplate = `(() => {
	const el = document.createElement('span');
	el.style.position = 'absolute';
	el.style.visibility = 'hidden';
	el.style.pointerEvents = 'none';
	el.style.color = %s;
	if (el.style.color === '') return '';
	document.body.appendChild(el);
	const value = getComputedStyle(el).color;
	el.remove();
	return value;
})()`

const clickLabelTemplate = `(() => {
	const want = %s.trim().toLowerCase();
	const nodes = document.querySelectorAll('[role="button"], [role="tab"], [role="listitem"], [role="option"], button, li');
	for (const el of nodes) {
		const text = (el.getAttribute('aria-label') || el.getAttribute('title') || el.textContent || '').trim().toLowerCase();
		if (text === want) {
			el.dispatchEvent(new MouseEvent('mousedown', { bubbles: true }));
			el.click();
			return true;
		}
	}
	return false;
})()`

const mutationCountJS = `(() => {
	if (!window.__overlayMutations) {
		window.__overlayMutations = { n: 0 };
		new MutationObserver(() => { window.__overlayMutations.n++; })
			.observe(document.body, { subtree: true, childList: true, attributes: true, characterData: true });
	}
	return window.__overlayMutations.n;
})()`

func moduleSampleJS(perSide int) string {
	if perSide <= 0 {
		perSide = 250
	}
	return fmt.Sprintf(moduleSampleTemplate, perSide)
}

func computedColorJS(token string) string {
	return fmt.Sprintf(computedColorTemplate, jsString(token))
}

func clickLabelJS(name string) string {
	return fmt.Sprintf(clickLabelTemplate, jsString(name))
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	encoded, _ := json.Marshal(s)
	return string(encoded)
}
